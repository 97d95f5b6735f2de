package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/njoerd114/bdcollect/internal/model"
)

// wireColumns maps the per-item flag columns of the catalog feed. Owned has
// no column: it follows from which list the row came from.
var wireColumns = map[model.Flag]string{
	model.FlagWanted:               "FLG_ACHAT",
	model.FlagRead:                 "FLG_LU",
	model.FlagLoaned:               "FLG_PRET",
	model.FlagDigitalEdition:       "FLG_NUM",
	model.FlagGift:                 "FLG_CADEAU",
	model.FlagDedicated:            "FLG_DEDICACE",
	model.FlagFirstPrint:           "FLG_TETE",
	model.FlagExcludedFromTracking: "FLG_EXCLU",
}

// wireAlbum is one row of the collection or wishlist feed. Identifier and
// numeric columns are left untyped because the feed sends them as JSON
// numbers on some endpoints and as strings on others.
type wireAlbum struct {
	WorkID    any    `json:"ID_TOME"`
	EditionID any    `json:"ID_EDITION"`
	Title     string `json:"TITRE_TOME"`
	SeriesID  any    `json:"ID_SERIE"`
	Tome      any    `json:"NUM_TOME"`
	Cover     string `json:"IMG_COUV"`
	Rating    any    `json:"MOYENNE_NOTE_TOME"`

	Flags map[string]string `json:"-"`
}

func (w *wireAlbum) UnmarshalJSON(data []byte) error {
	type plain wireAlbum
	var p plain
	if err := decodeNumbers(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := decodeNumbers(data, &raw); err != nil {
		return err
	}
	p.Flags = make(map[string]string, len(wireColumns))
	for _, col := range wireColumns {
		if s, ok := raw[col].(string); ok {
			p.Flags[col] = s
		}
	}
	*w = wireAlbum(p)
	return nil
}

// listEnvelope is the body of both list endpoints.
type listEnvelope struct {
	Items []json.RawMessage `json:"items"`
	Error string            `json:"error"`
}

// statusEnvelope is the body of every mutation endpoint.
type statusEnvelope struct {
	Error string `json:"error"`
}

// albumRequest identifies the album a mutation applies to.
type albumRequest struct {
	WorkID    int64 `json:"id_tome"`
	EditionID int64 `json:"id_edition"`
}

// flagRequest is the body of POST /album/flag.
type flagRequest struct {
	albumRequest
	Flag  string `json:"flag"`
	Value string `json:"value"`
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// toAlbum normalises a wire row. The source list decides the implied state:
// every collection row is owned, every wishlist row is wanted and not owned.
func (w *wireAlbum) toAlbum(wishlist bool) (model.Album, error) {
	id, err := model.ParseIdentity(w.WorkID, w.EditionID)
	if err != nil {
		return model.Album{}, err
	}
	a := model.Album{
		ID:    id,
		Title: strings.TrimSpace(w.Title),
		Cover: w.Cover,
	}
	if w.SeriesID != nil {
		if a.SeriesID, err = model.ParseID(w.SeriesID); err != nil {
			return model.Album{}, fmt.Errorf("series id: %w", err)
		}
	}
	if a.Tome, err = optionalInt(w.Tome); err != nil {
		return model.Album{}, fmt.Errorf("tome: %w", err)
	}
	if a.Rating, err = optionalFloat(w.Rating); err != nil {
		return model.Album{}, fmt.Errorf("rating: %w", err)
	}

	for f, col := range wireColumns {
		a.Flags = a.Flags.WithState(f, model.ParseTriState(w.Flags[col]))
	}
	if wishlist {
		a.Flags = a.Flags.With(model.FlagOwned, false).With(model.FlagWanted, true)
	} else {
		a.Flags = a.Flags.With(model.FlagOwned, true)
	}
	return a, nil
}

func optionalInt(v any) (*int, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, nil
		}
	}
	n, err := model.ParseID(v)
	if err != nil {
		return nil, err
	}
	i := int(n)
	return &i, nil
}

func optionalFloat(v any) (*float64, error) {
	var s string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		s = string(x)
	case string:
		s = strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
	case float64:
		return &x, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return &f, nil
}

// decodeList parses a list response. Rows that cannot be normalised are
// logged and skipped; an envelope error fails the whole call.
func decodeList(r io.Reader, op string, wishlist bool, logger *slog.Logger) ([]model.Album, error) {
	var env listEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	if env.Error != "" {
		return nil, &APIError{Op: op, Message: env.Error}
	}

	albums := make([]model.Album, 0, len(env.Items))
	for i, raw := range env.Items {
		var w wireAlbum
		if err := json.Unmarshal(raw, &w); err != nil {
			logger.Warn("skipping undecodable row", "op", op, "index", i, "error", err)
			continue
		}
		a, err := w.toAlbum(wishlist)
		if err != nil {
			logger.Warn("skipping malformed row", "op", op, "index", i, "error", err)
			continue
		}
		albums = append(albums, a)
	}
	return albums, nil
}
