package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/internal/hub/core/model"
	"github.com/roidota/roidota/pkg/log"
)

// UploadFirmware stores the binary read from r and registers it.
func (s *Service) UploadFirmware(ctx context.Context, name, version string, r io.Reader, size int64) (*model.Firmware, error) {
	if name == "" || version == "" {
		return nil, fmt.Errorf("%w: firmware name and version are required", core.ErrInvalidArgument)
	}

	key := model.ArtifactKeyFor(name, version, s.clock.Now())
	if err := s.storage.PutObject(ctx, key, r, size); err != nil {
		return nil, fmt.Errorf("upload firmware %s: %w", key, err)
	}

	return s.RegisterFirmware(ctx, name, version, key, size)
}

// RegisterFirmware records an artifact that already exists in the object store.
func (s *Service) RegisterFirmware(ctx context.Context, name, version, artifactKey string, size int64) (*model.Firmware, error) {
	if name == "" || artifactKey == "" {
		return nil, fmt.Errorf("%w: firmware name and artifact key are required", core.ErrInvalidArgument)
	}

	fw := &model.Firmware{
		ID:          uuid.NewString(),
		Name:        name,
		Version:     version,
		ArtifactKey: artifactKey,
		Size:        size,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.firmware.Create(ctx, fw); err != nil {
		return nil, fmt.Errorf("create firmware: %w", err)
	}

	log.Info("Firmware registered", "firmware", fw.ID, "name", fw.DisplayName(), "key", artifactKey)
	return fw, nil
}

func (s *Service) GetFirmware(ctx context.Context, id string) (*model.Firmware, error) {
	return s.firmware.Get(ctx, id)
}

func (s *Service) ListFirmware(ctx context.Context) ([]*model.Firmware, error) {
	return s.firmware.List(ctx)
}
