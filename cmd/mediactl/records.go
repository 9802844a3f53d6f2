package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mkrupp/mediapipe/internal/domain"
)

func readMedia(filename string) (*domain.Media, error) {
	var media domain.Media
	if err := readJSON(filename, &media); err != nil {
		return nil, err
	}

	return &media, nil
}

func readMedias(filename string) ([]*domain.Media, error) {
	var medias []*domain.Media
	if err := readJSON(filename, &medias); err != nil {
		return nil, err
	}

	return medias, nil
}

func readJSON(filename string, v any) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filename, err)
	}

	return nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	return nil
}
