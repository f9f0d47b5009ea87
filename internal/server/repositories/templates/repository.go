package templates

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/sheetscan/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, templateID string) (*models.Template, error)
	Create(ctx context.Context, templateID string) (*models.Template, error)
	Fill(ctx context.Context, templateID string, content json.RawMessage, pageCount int) (bool, error)
}
