package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileDeliverer writes each notification as a JSON file. Intended for local
// development in place of a real email channel.
type FileDeliverer struct {
	dir string
}

func NewFileDeliverer(dir string) *FileDeliverer {
	return &FileDeliverer{dir: dir}
}

func (d *FileDeliverer) Deliver(ctx context.Context, n Notification) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Join(ErrFailedToDeliver, err)
	}
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return errors.Join(ErrFailedToDeliver, err)
	}
	name := fmt.Sprintf("%s_%s_%s.json",
		n.CreatedAt.UTC().Format("2006_01_02_150405"),
		strings.ReplaceAll(string(n.Kind), ".", "_"),
		n.ID,
	)
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		return errors.Join(ErrFailedToDeliver, err)
	}
	return nil
}
