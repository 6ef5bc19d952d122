package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hotspot-map/internal/dataset"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/migrate"
	"hotspot-map/internal/store"
	"hotspot-map/internal/utils"
)

// Imports the JSON exports under DATASET_DIR into Postgres, one transaction per
// collection. IMPORT_KINDS limits the run to a comma-separated subset.
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	dir := os.Getenv("DATASET_DIR")
	if dir == "" {
		dir = filepath.Join("data", "datasets")
	}
	kinds := dataset.Kinds()
	if s := os.Getenv("IMPORT_KINDS"); s != "" {
		kinds = kinds[:0]
		for _, part := range strings.Split(s, ",") {
			k, err := dataset.ParseKind(strings.TrimSpace(part))
			if err != nil {
				l.Error("import_kind_error", "kind", part, "err", err)
				os.Exit(1)
			}
			kinds = append(kinds, k)
		}
	}

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	st := store.AttachDB(db)
	src := dataset.FileSource{Dir: dir}

	failed := 0
	for _, k := range kinds {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		rows, err := src.Fetch(ctx, k)
		if err == nil {
			err = st.ReplaceKind(ctx, k, rows)
		}
		cancel()
		if err != nil {
			l.Error("import_error", "kind", k, "err", err)
			failed++
			continue
		}
		l.Info("import_ok", "kind", k, "rows", len(rows))
	}
	if failed > 0 {
		os.Exit(1)
	}
}
