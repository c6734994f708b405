package store

import (
	"strings"
	"testing"
)

func Test_Config_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{DatabaseURL: "postgres://localhost/lore", Dimension: 768}},
		{name: "empty url", cfg: Config{Dimension: 768}, wantErr: true},
		{name: "whitespace url", cfg: Config{DatabaseURL: "   ", Dimension: 768}, wantErr: true},
		{name: "zero dimension", cfg: Config{DatabaseURL: "postgres://localhost/lore"}, wantErr: true},
		{name: "negative dimension", cfg: Config{DatabaseURL: "postgres://localhost/lore", Dimension: -1}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("want error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("want no error, got %v", err)
			}
		})
	}
}

func Test_VectorToString(t *testing.T) {
	t.Parallel()

	got := vectorToString([]float32{0.1, -0.25, 3})
	if got != "[0.1,-0.25,3]" {
		t.Errorf("want [0.1,-0.25,3], got %s", got)
	}

	if got := vectorToString(nil); got != "[]" {
		t.Errorf("empty vector: want [], got %s", got)
	}
}

func Test_Migrate_DimensionInDDL(t *testing.T) {
	t.Parallel()

	// The table DDL embeds the configured dimension; a mismatch here would
	// silently create a schema incompatible with the embedding backend.
	s := &PostgresStore{dimension: 1536}
	ddl := s.tableDDL()
	if !strings.Contains(ddl, "vector(1536)") {
		t.Errorf("DDL does not carry configured dimension: %s", ddl)
	}
}
