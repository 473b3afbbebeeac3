package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MrCodeEU/facefolio/pkg/api"
	"github.com/MrCodeEU/facefolio/pkg/collections"
	"github.com/MrCodeEU/facefolio/pkg/config"
	"github.com/MrCodeEU/facefolio/pkg/detection"
	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/metrics"
	"github.com/MrCodeEU/facefolio/pkg/recognition"
	"github.com/MrCodeEU/facefolio/pkg/resolver"
	"github.com/MrCodeEU/facefolio/pkg/scratch"
	"github.com/MrCodeEU/facefolio/pkg/session"
	"github.com/MrCodeEU/facefolio/pkg/storage"
)

// app holds the wired components of a running service.
type app struct {
	service *resolver.Service
	gallery *storage.FileGallery
	closers []func()
}

// Close releases every component in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func buildApp(ctx context.Context, c *config.Config) (*app, error) {
	if err := c.EnsureDirectories(); err != nil {
		return nil, err
	}

	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	opts, err := resolverOptions(c)
	if err != nil {
		return nil, err
	}

	gallery, err := openGallery(c)
	if err != nil {
		return nil, err
	}
	a.gallery = gallery
	a.closers = append(a.closers, func() { _ = gallery.Close() })
	metrics.GalleryEmbeddings.Set(float64(gallery.Lookup().Len()))

	detector, err := newDetector(c)
	if err != nil {
		return nil, err
	}
	if closer, isCloser := detector.(detection.Closer); isCloser {
		a.closers = append(a.closers, func() { _ = closer.Close() })
	}

	sessions, closeSessions, err := newSessions(ctx, c)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSessions)

	store, err := newCollections(ctx, c)
	if err != nil {
		return nil, err
	}

	dir, err := scratch.New(c.Storage.ScratchDir)
	if err != nil {
		return nil, err
	}

	a.service = resolver.New(resolver.Deps{
		Detector:    detector,
		Gallery:     gallery,
		Sessions:    sessions,
		Collections: store,
		Scratch:     dir,
	}, opts)

	ok = true
	return a, nil
}

func resolverOptions(c *config.Config) (resolver.Options, error) {
	index, err := recognition.ParseIndexKind(c.Recognition.Index)
	if err != nil {
		return resolver.Options{}, err
	}
	return resolver.Options{
		MatchThreshold: c.Recognition.MatchThreshold,
		Dedupe: recognition.DedupeConfig{
			SameFaceThreshold:    c.Recognition.SameFaceThreshold,
			AmbiguityMaxDistance: c.Recognition.AmbiguityMaxDistance,
			IoUThreshold:         c.Recognition.IoUThreshold,
		},
		Index:       index,
		CropPadding: c.Recognition.CropPadding,
		CropMaxSide: c.Recognition.CropMaxSide,
		CropWorkers: c.Recognition.CropWorkers,
	}, nil
}

func openGallery(c *config.Config) (*storage.FileGallery, error) {
	compression, err := storage.ParseCompression(c.Gallery.Compression)
	if err != nil {
		return nil, err
	}
	return storage.OpenFileGallery(c.Gallery.Path, storage.Options{
		Dimension:         c.Recognition.EmbeddingDimension,
		EncryptionEnabled: c.Gallery.EncryptionEnabled,
		Compression:       compression,
	})
}

func newDetector(c *config.Config) (detection.Detector, error) {
	switch c.Detector.Backend {
	case "dlib":
		d, err := detection.NewDlibDetector(c.Detector.ModelPath)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "http":
		logging.Infof("Using embedding server at %s", c.Detector.URL)
		return detection.NewHTTPDetector(c.Detector.URL, c.DetectorTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", c.Detector.Backend)
	}
}

func newSessions(ctx context.Context, c *config.Config) (session.Registry, func(), error) {
	switch c.Sessions.Backend {
	case "redis":
		r, err := session.NewRedisRegistry(session.RedisConfig{
			Addrs:     c.Sessions.Redis.Addrs,
			Username:  c.Sessions.Redis.Username,
			Password:  c.Sessions.Redis.Password,
			DB:        c.Sessions.Redis.DB,
			KeyPrefix: c.Sessions.Redis.KeyPrefix,
			TTL:       c.SessionTTL(),
		})
		if err != nil {
			return nil, nil, err
		}
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, nil, fmt.Errorf("redis is not reachable: %w", err)
		}
		logging.Infof("Using Redis session registry at %v", c.Sessions.Redis.Addrs)
		return r, r.Close, nil
	case "memory":
		return session.NewMemoryRegistry(c.SessionTTL()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown sessions backend %q", c.Sessions.Backend)
	}
}

func newCollections(ctx context.Context, c *config.Config) (collections.Store, error) {
	switch c.Collections.Backend {
	case "minio":
		m := c.Collections.Minio
		logging.Infof("Filing photos into bucket %s at %s", m.Bucket, m.Endpoint)
		return collections.NewMinioStore(ctx, collections.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			UseSSL:    m.UseSSL,
		})
	case "local":
		return collections.NewLocalStore(c.Collections.Dir)
	default:
		return nil, fmt.Errorf("unknown collections backend %q", c.Collections.Backend)
	}
}

func serverConfig(c *config.Config) api.Config {
	sc := api.DefaultConfig()
	sc.Host = c.Server.Host
	sc.Port = c.Server.Port
	sc.AllowedOrigins = c.Server.AllowedOrigins
	sc.UploadRate = c.Server.UploadRate
	sc.UploadBurst = c.Server.UploadBurst
	sc.MaxUploadMB = c.Server.MaxUploadMB
	// Detection runs inside the request.
	if t := c.DetectorTimeout() + 30*time.Second; t > sc.RequestTimeout {
		sc.RequestTimeout = t
	}
	return sc
}
