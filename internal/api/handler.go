package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"mes-backend/internal/csvimport"
	"mes-backend/internal/notification"
	"mes-backend/internal/store"
)

// Importer reloads the dataset from flat files.
type Importer interface {
	Run(ctx context.Context) (*csvimport.Result, error)
}

// Notifier queues maintenance alerts for push delivery.
type Notifier interface {
	Dispatch(alert notification.Alert) bool
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	importer Importer
	notifier Notifier
	webpush  *webpush.Options
	log      *zap.Logger
}

// NewHandler creates a new API handler. importer, notifier and
// webpushOptions may be nil; the routes depending on them degrade.
func NewHandler(s store.Store, importer Importer, notifier Notifier, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:    s,
		importer: importer,
		notifier: notifier,
		webpush:  webpushOptions,
		log:      log,
	}
}
