package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel"
)

// encodeSnapshot renders snap in format, "yaml" or "json".
func encodeSnapshot(snap kernel.Snapshot, format string) ([]byte, error) {
	switch format {
	case "yaml":
		return yaml.Marshal(snap)
	case "json":
		out, err := sonic.ConfigStd.MarshalIndent(snap, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown dump format %q", format)
	}
}
