package bot

import (
	"errors"

	"go.uber.org/zap"

	"convertbot/internal/convert"
	"convertbot/internal/phrases"
	"convertbot/internal/storage"
)

// Params holds the collaborators of a Bot
type Params struct {
	Gateway     Gateway
	Users       storage.UserStore
	Conversions storage.ConversionLog
	Backends    Backends
	Phrases     *phrases.Table
	Workspace   *convert.Workspace
	// MaxFileSize defaults to DefaultMaxFileSize
	MaxFileSize int
	Logger      *zap.Logger
}

// New creates a new conversion bot
func New(p Params) (*Bot, error) {
	switch {
	case p.Gateway == nil:
		return nil, errors.New("bot: gateway is required")
	case p.Users == nil:
		return nil, errors.New("bot: user store is required")
	case p.Conversions == nil:
		return nil, errors.New("bot: conversion log is required")
	case p.Backends.Image == nil || p.Backends.Document == nil || p.Backends.Video == nil:
		return nil, errors.New("bot: all three backends are required")
	case p.Phrases == nil:
		return nil, errors.New("bot: phrases are required")
	case p.Workspace == nil:
		return nil, errors.New("bot: workspace is required")
	}

	maxFileSize := p.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("Bot created",
		zap.String("language", p.Phrases.Language()),
		zap.Int("max_file_size", maxFileSize),
		zap.String("temp_dir", p.Workspace.Dir()),
	)

	return &Bot{
		gateway:     p.Gateway,
		users:       p.Users,
		conversions: p.Conversions,
		backends:    p.Backends,
		phrases:     p.Phrases,
		workspace:   p.Workspace,
		maxFileSize: maxFileSize,
		locks:       newUserLocks(),
		logger:      logger,
	}, nil
}
