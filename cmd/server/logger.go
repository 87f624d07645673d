package main

import (
	"github.com/tmarkov/campus-parking/internal/config"
	"github.com/tmarkov/campus-parking/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
