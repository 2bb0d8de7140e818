package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"filebox/internal/blobstore"
	"filebox/internal/config"
	"filebox/internal/files"
	"filebox/internal/hasher"
	"filebox/internal/server"
	"filebox/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the filebox API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}

			logger := slog.Default()

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			svc, closeFn, err := openService(cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := server.New(addr, svc, server.Options{
				MaxUploadBytes:   cfg.Storage.MaxUploadBytes,
				MaxFilesPerOwner: cfg.Storage.MaxFilesPerOwner,
			}, logger)
			return srv.ListenAndServe()
		},
	}
}

// openService wires the database, payload store and hasher named by cfg.
func openService(cfg *config.Config, logger *slog.Logger) (*files.Service, func(), error) {
	if cfg.DBPath == "" {
		return nil, nil, fmt.Errorf("db path is required")
	}
	if cfg.DataDir == "" {
		return nil, nil, fmt.Errorf("data dir is required")
	}

	h, err := hasher.ByName(cfg.Storage.DigestAlgorithm)
	if err != nil {
		return nil, nil, err
	}
	codec, err := blobstore.CodecByName(cfg.Storage.Compression)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	payloadRoot := filepath.Join(cfg.DataDir, "blobs")
	payloads, err := blobstore.NewLocalStore(payloadRoot, codec)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	logger.Info("payload store ready", "root", payloadRoot, "compression", cfg.Storage.Compression, "digest_algorithm", h.Algorithm())

	svc := files.New(st, payloads, h, files.Options{
		ResolveAttempts: cfg.Storage.ResolveAttempts,
		CheckWorkers:    cfg.Storage.CheckWorkers,
		OrphanGrace:     cfg.OrphanGraceDuration(),
	}, logger)
	return svc, func() { _ = st.Close() }, nil
}
