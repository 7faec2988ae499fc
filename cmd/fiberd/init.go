package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel"
	"github.com/GriffinCanCode/fiberkernel/internal/manifest"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// launcher is the userboot program. It builds the manifest's job tree from
// the root job handle it is given and starts every process in it.
type launcher struct {
	k   *kernel.Kernel
	log *zap.Logger
	m   *manifest.Manifest
}

// spawn is a created but not yet started manifest process.
type spawn struct {
	proc  manifest.Process
	h     sys.HandleValue
	peers []sys.HandleValue
}

func (l *launcher) launch(ctx context.Context, arg sys.HandleValue) {
	var code int64
	if err := l.run(ctx, arg); err != nil {
		l.log.Error("launch failed", zap.Error(err))
		code = 1
	}
	l.k.ProcessExit(ctx, code)
}

func (l *launcher) run(ctx context.Context, arg sys.HandleValue) error {
	boot, err := l.k.ReadBootstrap(ctx, arg)
	_ = l.k.HandleClose(ctx, arg)
	if err != nil {
		return fmt.Errorf("read bootstrap: %w", err)
	}
	root, ok := boot.Lookup(kernel.HandleInfo(kernel.HandleTypeJobDefault, 0))
	if !ok {
		return errors.New("bootstrap has no job handle")
	}

	jobs := make(map[*manifest.Job]sys.HandleValue)
	defer func() {
		for _, h := range jobs {
			_ = l.k.HandleClose(ctx, h)
		}
	}()

	var order []*spawn
	byName := make(map[string]*spawn)
	err = l.m.Walk(func(parent, job *manifest.Job) error {
		ph := root
		if parent != nil {
			ph = jobs[parent]
		}
		jh, err := l.createJob(ctx, ph, job)
		if err != nil {
			return fmt.Errorf("job %q: %w", job.Name, err)
		}
		jobs[job] = jh

		for _, p := range job.Processes {
			h, err := l.k.ProcessCreate(ctx, jh, p.Name, 0)
			if err != nil {
				return fmt.Errorf("process %q: %w", p.Name, err)
			}
			s := &spawn{proc: p, h: h}
			order = append(order, s)
			byName[p.Name] = s
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, s := range order {
		if s.proc.Connect == "" {
			continue
		}
		c0, c1, err := l.k.ChannelCreate(ctx, 0)
		if err != nil {
			return fmt.Errorf("connect %q to %q: %w", s.proc.Name, s.proc.Connect, err)
		}
		target := byName[s.proc.Connect]
		s.peers = append(s.peers, c0)
		target.peers = append(target.peers, c1)
	}

	for _, s := range order {
		if err := l.start(ctx, s); err != nil {
			return fmt.Errorf("start %q: %w", s.proc.Name, err)
		}
	}
	l.log.Info("manifest launched", zap.Int("jobs", len(jobs)), zap.Int("processes", len(order)))
	return nil
}

func (l *launcher) createJob(ctx context.Context, parent sys.HandleValue, job *manifest.Job) (sys.HandleValue, error) {
	jh, _, err := l.k.JobCreate(ctx, parent, 0)
	if err != nil {
		return sys.HandleInvalid, err
	}
	if err := l.k.ObjectSetProperty(ctx, jh, sys.PropName, []byte(job.Name)); err != nil {
		_ = l.k.HandleClose(ctx, jh)
		return sys.HandleInvalid, err
	}
	if len(job.Policy) == 0 {
		return jh, nil
	}
	policies, err := job.BasicPolicies()
	if err == nil {
		err = l.k.JobSetPolicy(ctx, jh, sys.PolicyRelative, sys.PolicyTopicBasic, policies)
	}
	if err != nil {
		_ = l.k.HandleClose(ctx, jh)
		return sys.HandleInvalid, err
	}
	return jh, nil
}

// start sends s its bootstrap message and runs its program. The launcher
// gives up its process handle and peer channels either way.
func (l *launcher) start(ctx context.Context, s *spawn) error {
	defer l.k.HandleClose(ctx, s.h)

	prog, ok := programs[s.proc.Program]
	if !ok {
		return fmt.Errorf("unknown program %q", s.proc.Program)
	}

	boot0, boot1, err := l.k.ChannelCreate(ctx, 0)
	if err != nil {
		return err
	}
	defer l.k.HandleClose(ctx, boot0)

	self, err := l.k.HandleDuplicate(ctx, s.h, sys.RightSameRights)
	if err != nil {
		_ = l.k.HandleClose(ctx, boot1)
		return err
	}
	handles := []kernel.BootstrapHandle{{Info: kernel.HandleInfo(kernel.HandleTypeProcSelf, 0), Handle: self}}
	for i, p := range s.peers {
		handles = append(handles, kernel.BootstrapHandle{Info: kernel.HandleInfo(kernel.HandleTypeUser0, uint16(i)), Handle: p})
	}
	if err := l.k.WriteBootstrap(ctx, boot0, handles, s.proc.Args); err != nil {
		_ = l.k.HandleClose(ctx, boot1)
		return err
	}

	if err := l.k.ProcessStart(ctx, s.h, l.entry(s.proc.Name, prog), boot1); err != nil {
		_ = l.k.HandleClose(ctx, boot1)
		return err
	}
	return nil
}

// entry adapts prog to a process entry point.
func (l *launcher) entry(name string, prog program) kernel.Entry {
	return func(ctx context.Context, arg sys.HandleValue) {
		log := l.log.With(zap.String("process", name))
		boot, err := l.k.ReadBootstrap(ctx, arg)
		_ = l.k.HandleClose(ctx, arg)
		if err != nil {
			log.Error("bad bootstrap", zap.Error(err))
			l.k.ProcessExit(ctx, 2)
		}
		if self, ok := boot.Lookup(kernel.HandleInfo(kernel.HandleTypeProcSelf, 0)); ok {
			_ = l.k.HandleClose(ctx, self)
		}
		l.k.ProcessExit(ctx, prog(ctx, &env{k: l.k, log: log, boot: boot}))
	}
}
