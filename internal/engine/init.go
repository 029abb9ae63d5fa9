package engine

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mnemo/internal/types"
)

//go:embed seed.yaml
var seedYAML []byte

type seedNote struct {
	Title    string `yaml:"title"`
	Folder   string `yaml:"folder"`
	Kind     string `yaml:"kind"`
	Language string `yaml:"language"`
	Content  string `yaml:"content"`
}

type seedFolder struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type seedData struct {
	Folders []seedFolder `yaml:"folders"`
	Notes   []seedNote   `yaml:"notes"`
}

// EnsureInitialized hydrates the mirror from the store and, when the
// store holds no notes and no folders, seeds it with the built-in
// starter content. Concurrent callers collapse to a single run; a
// failed run leaves the engine uninitialized so a later call retries.
func (e *Engine) EnsureInitialized(ctx context.Context) error {
	e.initMu.Lock()
	done := e.initDone
	e.initMu.Unlock()
	if done {
		return nil
	}

	_, err, _ := e.initGroup.Do("init", func() (interface{}, error) {
		e.initMu.Lock()
		defer e.initMu.Unlock()
		if e.initDone {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := e.loadMirror(); err != nil {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}

		// The emptiness check happens inside the critical section, so
		// content created moments earlier can never be double-seeded.
		empty, err := e.store.Empty()
		if err != nil {
			return nil, fmt.Errorf("failed to check store: %w", err)
		}
		if empty {
			if err := e.seed(); err != nil {
				return nil, fmt.Errorf("failed to seed starter content: %w", err)
			}
		}

		e.initDone = true
		return nil, nil
	})
	return err
}

// seed installs the embedded starter folders and notes. Runs under the
// init lock against an empty store. All rows land in one store
// transaction: a failure leaves the store exactly as empty as it was,
// so a later EnsureInitialized retries the whole seed.
func (e *Engine) seed() error {
	var data seedData
	if err := yaml.Unmarshal(seedYAML, &data); err != nil {
		return fmt.Errorf("failed to parse seed data: %w", err)
	}

	now := e.now()
	folderIDs := make(map[string]string, len(data.Folders))
	folders := make([]*types.Folder, 0, len(data.Folders))
	for _, sf := range data.Folders {
		f := &types.Folder{
			ID:          types.NewFolderID(now),
			Name:        sf.Name,
			Description: sf.Description,
			CreatedAt:   now,
		}
		folderIDs[sf.Name] = f.ID
		folders = append(folders, f)
	}

	notes := make([]*types.Note, 0, len(data.Notes))
	for _, sn := range data.Notes {
		kind := types.ContentKind(sn.Kind)
		if kind == "" {
			kind = types.KindText
		}
		notes = append(notes, &types.Note{
			ID:        types.NewNoteID(now),
			Title:     sn.Title,
			Content:   sn.Content,
			FolderID:  folderIDs[sn.Folder],
			Kind:      kind,
			Language:  sn.Language,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := e.store.SeedContent(folders, notes); err != nil {
		return err
	}
	e.logger.Info("seeded starter content",
		zap.Int("folders", len(folders)),
		zap.Int("notes", len(notes)))
	return e.loadMirror()
}
