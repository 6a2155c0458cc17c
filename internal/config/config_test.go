package config

import "testing"

// The backend decision is a pure function over the config, so it gets a
// plain table test — no environment juggling needed.
func TestBackend(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want BackendKind
	}{
		{
			name: "no credentials selects sqlite",
			cfg:  Config{DBPath: "data/kb.db"},
			want: BackendSQLite,
		},
		{
			name: "both credentials select supabase",
			cfg:  Config{SupabaseURL: "https://xyz.supabase.co", SupabaseKey: "anon-key"},
			want: BackendSupabase,
		},
		{
			name: "url without key stays local",
			cfg:  Config{SupabaseURL: "https://xyz.supabase.co"},
			want: BackendSQLite,
		},
		{
			name: "key without url stays local",
			cfg:  Config{SupabaseKey: "anon-key"},
			want: BackendSQLite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Backend(); got != tt.want {
				t.Errorf("Backend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_RejectsHalfConfiguredCredentials(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://xyz.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted SUPABASE_URL without SUPABASE_ANON_KEY")
	}
}

func TestLoad_DefaultPort(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("DB_PATH", t.TempDir()+"/kb.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Backend() != BackendSQLite {
		t.Errorf("Backend() = %q, want sqlite", cfg.Backend())
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted a non-numeric PORT")
	}
}
