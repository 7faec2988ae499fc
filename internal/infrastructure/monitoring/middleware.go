package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware that counts debug HTTP requests.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()))
	}
}

// Timer measures one kernel call.
type Timer struct {
	start   time.Time
	metrics *Metrics
	syscall string
}

// NewTimer starts timing syscall. A nil metrics yields a timer whose Stop
// does nothing.
func NewTimer(metrics *Metrics, syscall string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		syscall: syscall,
	}
}

// Stop records the call with its result status.
func (t *Timer) Stop(status string) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordSyscall(t.syscall, status, time.Since(t.start))
}
