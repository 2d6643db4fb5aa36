package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		APIToken:              "test-token-123",
		DataDir:               "/tmp/nightwatch",
		AnthropicAPIKey:       "sk-test-key",
		AnthropicModel:        "claude-sonnet-4-20250514",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.AnthropicModel != "claude-sonnet-4-20250514" {
		t.Errorf("AnthropicModel = %q, want %q", c.AnthropicModel, "claude-sonnet-4-20250514")
	}
	if c.DataDir != "/var/lib/nightwatch" {
		t.Errorf("DataDir = %q, want %q", c.DataDir, "/var/lib/nightwatch")
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-data-dir", "/data/nw",
		"-anthropic-api-key", "sk-override",
		"-anthropic-model", "claude-opus-4-20250514",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 120 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 120", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.DataDir != "/data/nw" {
		t.Errorf("DataDir = %q, want %q", c.DataDir, "/data/nw")
	}
	if c.AnthropicAPIKey != "sk-override" {
		t.Errorf("AnthropicAPIKey = %q, want %q", c.AnthropicAPIKey, "sk-override")
	}
	if c.AnthropicModel != "claude-opus-4-20250514" {
		t.Errorf("AnthropicModel = %q, want %q", c.AnthropicModel, "claude-opus-4-20250514")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		errSubstr []string
	}{
		{
			name:    "defaults are valid",
			cfg:     validBase(),
			wantErr: false,
		},
		{
			name: "minimum valid values",
			cfg: Config{
				DrainSeconds: 1, ShutdownBudgetSeconds: 2, APIPort: 1,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
			},
			wantErr: false,
		},
		{
			name: "maximum valid values",
			cfg: Config{
				DrainSeconds: 299, ShutdownBudgetSeconds: 300, APIPort: 65535,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
			},
			wantErr: false,
		},
		{
			name:      "drain zero",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 90, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain negative",
			cfg:       Config{DrainSeconds: -1, ShutdownBudgetSeconds: 90, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name:      "drain above max",
			cfg:       Config{DrainSeconds: 301, ShutdownBudgetSeconds: 302, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS"},
		},
		{
			name: "drain at lower bound",
			cfg: Config{
				DrainSeconds: 1, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
			},
			wantErr: false,
		},
		{
			name:    "drain at upper bound",
			cfg:     Config{DrainSeconds: 300, ShutdownBudgetSeconds: 300, APIPort: 8080},
			wantErr: true, // budget must be greater than drain
		},
		{
			name:      "budget zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 0, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget negative",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: -1, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 301, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"},
		},
		{
			name:      "budget equals drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 60, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name:      "budget less than drain",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 30, APIPort: 8080},
			wantErr:   true,
			errSubstr: []string{"must be greater than"},
		},
		{
			name: "budget is drain plus one",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 61, APIPort: 8080,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
			},
			wantErr: false,
		},
		{
			name:      "port zero",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 0},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port negative",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: -1},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name:      "port above max",
			cfg:       Config{DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 65536},
			wantErr:   true,
			errSubstr: []string{"HTTP_PORT"},
		},
		{
			name: "empty api token",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
			},
			wantErr:   true,
			errSubstr: []string{"API_TOKEN"},
		},
		{
			name: "empty data dir",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", DataDir: "", AnthropicAPIKey: "k", AnthropicModel: "m",
			},
			wantErr:   true,
			errSubstr: []string{"DATA_DIR"},
		},
		{
			name: "empty anthropic api key",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "", AnthropicModel: "m",
			},
			wantErr:   true,
			errSubstr: []string{"ANTHROPIC_API_KEY"},
		},
		{
			name: "empty anthropic model",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "",
			},
			wantErr:   true,
			errSubstr: []string{"ANTHROPIC_MODEL"},
		},
		{
			name: "stt without tts",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
				STTAddr: "localhost:10300",
			},
			wantErr:   true,
			errSubstr: []string{"STT_ADDR and TTS_ADDR"},
		},
		{
			name: "tts without stt",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
				TTSAddr: "localhost:10200",
			},
			wantErr:   true,
			errSubstr: []string{"STT_ADDR and TTS_ADDR"},
		},
		{
			name: "stt and tts both set",
			cfg: Config{
				DrainSeconds: 60, ShutdownBudgetSeconds: 90, APIPort: 8080,
				APIToken: "t", DataDir: "d", AnthropicAPIKey: "k", AnthropicModel: "m",
				STTAddr: "localhost:10300", TTSAddr: "localhost:10200",
			},
			wantErr: false,
		},
		{
			name:      "all fields invalid",
			cfg:       Config{DrainSeconds: 0, ShutdownBudgetSeconds: 0, APIPort: 0},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT", "API_TOKEN", "DATA_DIR", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL"},
		},
		{
			name:      "extreme negative values",
			cfg:       Config{DrainSeconds: math.MinInt32, ShutdownBudgetSeconds: math.MinInt32, APIPort: math.MinInt32},
			wantErr:   true,
			errSubstr: []string{"DRAIN_SECONDS", "SHUTDOWN_BUDGET_SECONDS", "HTTP_PORT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				errMsg := err.Error()
				for _, sub := range tt.errSubstr {
					if !strings.Contains(errMsg, sub) {
						t.Errorf("error %q does not contain %q", errMsg, sub)
					}
				}
			}
		})
	}
}

func FuzzValidate(f *testing.F) {
	seeds := []struct {
		drain, budget, port        int
		token, dataDir, key, model string
	}{
		{60, 90, 8080, "tok", "/data", "sk-test", "claude-sonnet"},
		{1, 2, 1, "t", "d", "k", "m"},
		{299, 300, 65535, "t", "d", "k", "m"},
		{0, 0, 0, "", "", "", ""},
		{-1, -1, -1, "", "", "", ""},
		{300, 300, 65535, "t", "d", "k", "m"},
		{301, 302, 65536, "", "", "", ""},
		{150, 100, 8080, "t", "d", "k", "m"},
		{math.MinInt32, math.MinInt32, math.MinInt32, "", "", "", ""},
		{math.MaxInt32, math.MaxInt32, math.MaxInt32, "", "", "", ""},
	}
	for _, s := range seeds {
		f.Add(s.drain, s.budget, s.port, s.token, s.dataDir, s.key, s.model)
	}

	f.Fuzz(func(t *testing.T, drain, budget, port int, token, dataDir, key, model string) {
		c := Config{
			DrainSeconds:          drain,
			ShutdownBudgetSeconds: budget,
			APIPort:               port,
			APIToken:              token,
			DataDir:               dataDir,
			AnthropicAPIKey:       key,
			AnthropicModel:        model,
		}
		err := c.Validate()

		drainOK := drain >= 1 && drain <= 300
		budgetOK := budget >= 1 && budget <= 300
		portOK := port >= 1 && port <= 65535
		crossOK := budget > drain
		tokenOK := token != ""
		dataDirOK := dataDir != ""
		keyOK := key != ""
		modelOK := model != ""

		allValid := drainOK && budgetOK && portOK && crossOK && tokenOK && dataDirOK && keyOK && modelOK

		if allValid && err != nil {
			t.Errorf("expected no error for valid config %+v, got: %v", c, err)
		}
		if !allValid && err == nil {
			t.Errorf("expected error for invalid config %+v, got nil", c)
		}
	})
}
