package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// FileSource reads an offline catalog snapshot of the form
// {"coupons": [...], "banners": [...]}. A missing file is an empty catalog.
type FileSource struct {
	path string

	once sync.Once
	doc  fileDocument
	err  error
}

type fileDocument struct {
	Coupons []Record `json:"coupons"`
	Banners []Record `json:"banners"`
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) ListActiveCoupons(ctx context.Context) ([]Record, error) {
	if err := s.read(); err != nil {
		return nil, err
	}
	return s.doc.Coupons, nil
}

func (s *FileSource) ListBanners(ctx context.Context) ([]Record, error) {
	if err := s.read(); err != nil {
		return nil, err
	}
	return s.doc.Banners, nil
}

func (s *FileSource) read() error {
	s.once.Do(func() {
		f, err := os.Open(s.path)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			s.err = fmt.Errorf("failed to open catalog snapshot: %w", err)
			return
		}
		defer f.Close()

		dec := json.NewDecoder(f)
		dec.UseNumber()
		if err := dec.Decode(&s.doc); err != nil {
			s.err = fmt.Errorf("failed to decode catalog snapshot: %w", err)
		}
	})
	return s.err
}
