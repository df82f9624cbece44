package core

import (
	"context"
	"fmt"

	"refinerycore/internal/config"
	"refinerycore/internal/dataset"
	"refinerycore/internal/infra/persistence/memory"
	"refinerycore/internal/infra/persistence/postgres"
	"refinerycore/internal/infra/persistence/sqlite"
)

// CaseStore reads, writes and enumerates case data.
type CaseStore interface {
	dataset.Source
	dataset.Saver
	List(ctx context.Context) ([]string, error)
}

var (
	_ CaseStore = dataset.FileSource{}
	_ CaseStore = (*memory.Store)(nil)
	_ CaseStore = (*sqlite.Store)(nil)
	_ CaseStore = (*postgres.Store)(nil)
)

// SampleCases lists the case identifiers seeded into the memory driver.
var SampleCases = []string{"case1", "case2", "case3"}

// OpenCaseStore selects a backend from the data configuration. The memory
// driver starts seeded with the built-in sample cases. Stores holding a
// connection implement io.Closer.
func OpenCaseStore(ctx context.Context, cfg config.Data) (CaseStore, error) {
	switch cfg.Driver {
	case config.DataMemory:
		seed := make([]dataset.Bundle, 0, len(SampleCases))
		for _, id := range SampleCases {
			seed = append(seed, *dataset.SampleBundle(id))
		}
		return memory.NewStore(seed...), nil
	case config.DataFile:
		return dataset.FileSource{Dir: cfg.CaseDir}, nil
	case "", config.DataSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DataPostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown data driver %s", cfg.Driver)
	}
}
