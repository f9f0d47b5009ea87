// Package matcher decides which side of a sheet an uploaded page is and which
// template it belongs to.
package matcher

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/logging"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/pagekey"
)

// Meta is what the device reports alongside the image.
type Meta struct {
	QRCodeScanned bool
	QRCode        string
	Reverted      bool
}

type Upload struct {
	// Name is the page name without extension, e.g. "examA_0001".
	Name      string
	ImagePath string
	Meta      Meta
}

type Match struct {
	Key         pagekey.Key
	Side        models.Side
	TemplateID  string
	ExamID      string
	SiblingName string
	Reverted    bool
}

// CodeDecoder reads the sheet code printed on a front page. An empty string
// with a nil error means no code was found.
type CodeDecoder interface {
	Decode(ctx context.Context, imagePath string) (string, error)
}

// Normalizer reports whether the image had to be rotated upright.
type Normalizer interface {
	Normalize(ctx context.Context, u Upload) (reverted bool, err error)
}

// SiblingFinder looks up a page still waiting under a provisional name.
type SiblingFinder interface {
	FindByTmpName(ctx context.Context, name string) (*models.Scan, error)
}

// MetaNormalizer trusts the device's own rotation flag.
type MetaNormalizer struct{}

func (MetaNormalizer) Normalize(_ context.Context, u Upload) (bool, error) {
	return u.Meta.Reverted, nil
}

type Matcher struct {
	decoder    CodeDecoder
	normalizer Normalizer
	siblings   SiblingFinder
	examMarker string
	log        logging.Logger
}

func New(decoder CodeDecoder, normalizer Normalizer, siblings SiblingFinder, examMarker string, log logging.Logger) *Matcher {
	if normalizer == nil {
		normalizer = MetaNormalizer{}
	}
	if examMarker == "" {
		examMarker = common.DefaultExamMarker
	}
	return &Matcher{
		decoder:    decoder,
		normalizer: normalizer,
		siblings:   siblings,
		examMarker: examMarker,
		log:        log,
	}
}

// Match classifies u. Only a malformed name or a storage failure is an
// error; an unreadable code just leaves the template unset.
func (m *Matcher) Match(ctx context.Context, u Upload) (Match, error) {
	key, err := pagekey.Parse(u.Name)
	if err != nil {
		return Match{}, err
	}

	res := Match{Key: key}
	if sib, err := key.Sibling(); err == nil {
		res.SiblingName = sib.String()
	}

	res.Reverted, err = m.normalizer.Normalize(ctx, u)
	if err != nil {
		return Match{}, err
	}

	code := ""
	if key.IsFront() {
		code = m.code(ctx, u)
	}

	if code != "" {
		res.Side = models.SideA
		res.TemplateID = code
		if strings.Contains(code, m.examMarker) {
			res.ExamID = code
		}
		return res, nil
	}

	res.Side = models.SideB
	if res.SiblingName == "" {
		return res, nil
	}
	sib, err := m.siblings.FindByTmpName(ctx, res.SiblingName)
	switch {
	case err == nil:
		res.TemplateID = sib.TemplateID
		res.ExamID = sib.ExamID
	case errors.Is(err, common.ErrorNotFound):
	default:
		return Match{}, err
	}
	return res, nil
}

func (m *Matcher) code(ctx context.Context, u Upload) string {
	if u.Meta.QRCodeScanned {
		return strings.TrimSpace(u.Meta.QRCode)
	}
	if m.decoder == nil {
		return ""
	}
	code, err := m.decoder.Decode(ctx, u.ImagePath)
	if err != nil {
		m.log.Warn(ctx, "code decode failed", "page", u.Name, "error", err)
		return ""
	}
	return strings.TrimSpace(code)
}
