package executor_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopload/shopload/internal/loadtest"
	"github.com/shopload/shopload/internal/loadtest/executor"
	"github.com/shopload/shopload/internal/loadtest/metrics"
)

// countingRunner counts iterations without doing any I/O.
type countingRunner struct {
	count *atomic.Int64
}

func (r *countingRunner) RunIteration(ctx context.Context) error {
	r.count.Add(1)
	return nil
}

// newTestScheduler builds a scheduler whose VUs increment a shared counter.
func newTestScheduler(t *testing.T) (*loadtest.VUScheduler, *metrics.Engine, *atomic.Int64) {
	t.Helper()

	metricsEngine := metrics.NewEngine()
	t.Cleanup(metricsEngine.Stop)

	var iterations atomic.Int64
	factory := func(vuID int, client *http.Client) loadtest.IterationRunner {
		return &countingRunner{count: &iterations}
	}

	scheduler := loadtest.NewVUScheduler(factory, metricsEngine, loadtest.DefaultHTTPClientConfig())
	return scheduler, metricsEngine, &iterations
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *executor.Config
		wantErr bool
	}{
		{
			name:    "missing type",
			config:  &executor.Config{},
			wantErr: true,
		},
		{
			name:    "unknown type",
			config:  &executor.Config{Type: "spike"},
			wantErr: true,
		},
		{
			name:    "valid constant-vus",
			config:  &executor.Config{Type: executor.TypeConstantVUs, VUs: 10, Duration: time.Minute},
			wantErr: false,
		},
		{
			name:    "constant-vus without vus",
			config:  &executor.Config{Type: executor.TypeConstantVUs, Duration: time.Minute},
			wantErr: true,
		},
		{
			name:    "constant-vus without duration",
			config:  &executor.Config{Type: executor.TypeConstantVUs, VUs: 10},
			wantErr: true,
		},
		{
			name: "valid ramping-vus",
			config: &executor.Config{
				Type:   executor.TypeRampingVUs,
				Stages: []executor.Stage{{Duration: 30 * time.Second, Target: 10}},
			},
			wantErr: false,
		},
		{
			name:    "ramping-vus without stages",
			config:  &executor.Config{Type: executor.TypeRampingVUs},
			wantErr: true,
		},
		{
			name:    "valid constant-arrival-rate",
			config:  &executor.Config{Type: executor.TypeConstantArrivalRate, Rate: 100, Duration: time.Minute},
			wantErr: false,
		},
		{
			name:    "arrival-rate without rate",
			config:  &executor.Config{Type: executor.TypeConstantArrivalRate, Duration: time.Minute},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_TotalDuration(t *testing.T) {
	cfg := &executor.Config{Type: executor.TypeConstantVUs, Duration: 5 * time.Minute}
	if cfg.TotalDuration() != 5*time.Minute {
		t.Errorf("TotalDuration() = %v, want 5m", cfg.TotalDuration())
	}

	cfg = &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: 30 * time.Second, Target: 10},
			{Duration: 2 * time.Minute, Target: 10},
			{Duration: 30 * time.Second, Target: 0},
		},
	}
	if cfg.TotalDuration() != 3*time.Minute {
		t.Errorf("TotalDuration() = %v, want 3m", cfg.TotalDuration())
	}
}

func TestPacingConfig_Sample(t *testing.T) {
	var nilPacing *executor.PacingConfig
	if nilPacing.Sample() != 0 {
		t.Error("nil pacing Sample() != 0")
	}

	none := &executor.PacingConfig{Type: executor.PacingNone}
	if none.Sample() != 0 {
		t.Error("none pacing Sample() != 0")
	}

	constant := &executor.PacingConfig{Type: executor.PacingConstant, Duration: 50 * time.Millisecond}
	if constant.Sample() != 50*time.Millisecond {
		t.Errorf("constant pacing Sample() = %v, want 50ms", constant.Sample())
	}

	random := &executor.PacingConfig{Type: executor.PacingRandom, Min: 10 * time.Millisecond, Max: 30 * time.Millisecond}
	for i := 0; i < 100; i++ {
		got := random.Sample()
		if got < 10*time.Millisecond || got >= 30*time.Millisecond {
			t.Fatalf("random pacing Sample() = %v, want [10ms, 30ms)", got)
		}
	}

	degenerate := &executor.PacingConfig{Type: executor.PacingRandom, Min: 20 * time.Millisecond, Max: 20 * time.Millisecond}
	if degenerate.Sample() != 20*time.Millisecond {
		t.Errorf("degenerate random pacing Sample() = %v, want 20ms", degenerate.Sample())
	}
}

func TestNewExecutor(t *testing.T) {
	for _, execType := range executor.GetSupportedExecutors() {
		e, err := executor.NewExecutor(execType)
		if err != nil {
			t.Errorf("NewExecutor(%s) error = %v", execType, err)
			continue
		}
		if e.Type() != execType {
			t.Errorf("NewExecutor(%s).Type() = %s", execType, e.Type())
		}
	}

	if _, err := executor.NewExecutor("spike"); err == nil {
		t.Error("NewExecutor(spike) error = nil, want error")
	}
}

func TestCreateAndInitExecutor(t *testing.T) {
	cfg := &executor.Config{
		Type:     executor.TypeConstantVUs,
		VUs:      5,
		Duration: time.Minute,
	}

	e, err := executor.CreateAndInitExecutor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateAndInitExecutor() error = %v", err)
	}
	if e.Type() != executor.TypeConstantVUs {
		t.Errorf("Type() = %s, want constant-vus", e.Type())
	}
}

func TestCreateAndInitExecutor_InvalidConfig(t *testing.T) {
	cfg := &executor.Config{Type: executor.TypeConstantVUs}

	if _, err := executor.CreateAndInitExecutor(context.Background(), cfg); err == nil {
		t.Fatal("CreateAndInitExecutor() error = nil for invalid config")
	}
}

func TestIsValidExecutorType(t *testing.T) {
	valid := []string{"constant-vus", "ramping-vus", "constant-arrival-rate"}
	for _, s := range valid {
		if !executor.IsValidExecutorType(s) {
			t.Errorf("IsValidExecutorType(%s) = false, want true", s)
		}
	}
	if executor.IsValidExecutorType("spike") {
		t.Error("IsValidExecutorType(spike) = true, want false")
	}
}

func TestCalculateMaxVUs(t *testing.T) {
	cfg := &executor.Config{Type: executor.TypeConstantVUs, VUs: 10}
	if got := executor.CalculateMaxVUs(cfg); got != 10 {
		t.Errorf("CalculateMaxVUs() = %d, want 10", got)
	}

	cfg = &executor.Config{
		Type: executor.TypeRampingVUs,
		Stages: []executor.Stage{
			{Duration: time.Second, Target: 5},
			{Duration: time.Second, Target: 20},
			{Duration: time.Second, Target: 0},
		},
	}
	if got := executor.CalculateMaxVUs(cfg); got != 20 {
		t.Errorf("CalculateMaxVUs() = %d, want 20", got)
	}

	cfg = &executor.Config{Type: executor.TypeConstantArrivalRate, MaxVUs: 50}
	if got := executor.CalculateMaxVUs(cfg); got != 50 {
		t.Errorf("CalculateMaxVUs() = %d, want 50", got)
	}
}
