package logsvc_test

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	logsvc "github.com/trezcool/shule/services/logger"
)

func newLogger(debug bool) (*logsvc.RollbarLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logsvc.NewRollbarLogger(logsvc.NewConsole(&buf, "TEST", debug), &core.Config{Env: "TEST"})
	logger.Enable(false)
	return logger, &buf
}

func TestRollbarLogger(t *testing.T) {
	usr := user.User{ID: 1, Username: "jane"}

	tests := []struct {
		name    string
		debug   bool
		log     func(l core.Logger)
		want    []string
		wantNot []string
	}{
		{
			name:    "info with extras",
			log:     func(l core.Logger) { l.Info("arrangement generated", map[string]interface{}{"seats": 28}) },
			want:    []string{"INFO", "TEST", "arrangement generated", "seats=28"},
			wantNot: []string{"arg"},
		},
		{
			name:    "error with user",
			log:     func(l core.Logger) { l.Error("request failed", errors.New("boom"), usr) },
			want:    []string{"ERRO", "request failed", "err=boom", "user=jane"},
			wantNot: []string{"rollbar_test.go", "TestRollbarLogger"},
		},
		{
			name:    "wrapped error on one line",
			log:     func(l core.Logger) { l.Warn("layout rejected", errors.Wrap(errors.New("bad seat"), "normalizing")) },
			want:    []string{"WARN", "layout rejected", `err="normalizing: bad seat"`},
			wantNot: []string{"\n  │", "rollbar_test.go"},
		},
		{
			name: "unknown args",
			log:  func(l core.Logger) { l.Warn("odd", 42) },
			want: []string{"WARN", "odd", "arg0=42"},
		},
		{
			name:    "debug hidden",
			log:     func(l core.Logger) { l.Debug("details") },
			wantNot: []string{"details"},
		},
		{
			name:  "debug shown",
			debug: true,
			log:   func(l core.Logger) { l.Debug("details") },
			want:  []string{"DEBU", "details"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newLogger(tt.debug)
			tt.log(logger)
			out := buf.String()
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.wantNot {
				assert.NotContains(t, out, s)
			}
		})
	}
}

type restyCall struct {
	level, msg string
}

type recorder struct {
	calls []restyCall
}

func (r *recorder) log(level, msg string) { r.calls = append(r.calls, restyCall{level, msg}) }
func (r *recorder) Debug(msg string, _ ...interface{}) { r.log("debug", msg) }
func (r *recorder) Info(msg string, _ ...interface{}) { r.log("info", msg) }
func (r *recorder) Warn(msg string, _ ...interface{}) { r.log("warn", msg) }
func (r *recorder) Error(msg string, _ ...interface{}) { r.log("error", msg) }
func (r *recorder) Fatal(msg string, _ ...interface{}) { r.log("fatal", msg) }

func TestRestyLogger(t *testing.T) {
	rec := new(recorder)
	l := logsvc.RestyLogger{Logger: rec}
	l.Debugf("GET %s", "/health")
	l.Warnf("retry %d", 1)
	l.Errorf("failed: %v", errors.New("timeout"))

	assert.Equal(t, []restyCall{
		{"debug", "GET /health"},
		{"warn", "retry 1"},
		{"error", "failed: timeout"},
	}, rec.calls)
}
