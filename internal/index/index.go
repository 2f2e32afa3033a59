// Package index keeps a bleve full-text index over catalog entries so the
// CLI can search versions by id, channel, year or main class.
package index

import (
	"errors"
	"fmt"
	"strconv"

	"go-version-updater/internal/models"
	"go-version-updater/internal/updater"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	log "github.com/sirupsen/logrus"
)

// Document is the indexed form of one catalog entry.
type Document struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Year      string `json:"year"`
	MainClass string `json:"mainClass"`
	Source    string `json:"source"`
	Installed bool   `json:"installed"`
}

// Hit is one search result.
type Hit struct {
	ID        string
	Score     float64
	Type      string
	Year      string
	MainClass string
	Installed bool
}

// FromSyncInfo builds the document for info. The main class is only known
// once a complete descriptor has been loaded.
func FromSyncInfo(info updater.VersionSyncInfo) Document {
	doc := Document{
		ID:        info.ID(),
		Source:    info.LatestSource().String(),
		Installed: info.Installed,
	}
	latest := info.LatestVersion()
	if latest == nil {
		return doc
	}
	doc.Type = string(latest.GetType())
	if released := latest.GetReleaseTime(); !released.IsZero() {
		doc.Year = strconv.Itoa(released.Year())
	}
	for _, v := range []models.Version{info.Local, info.Remote} {
		if complete, ok := v.(*models.CompleteVersion); ok && complete.MainClass != "" {
			doc.MainClass = complete.MainClass
			break
		}
	}
	return doc
}

func newMapping() *mapping.IndexMappingImpl {
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	for _, field := range []string{"id", "type", "year", "mainClass", "source"} {
		doc.AddFieldMappingsAt(field, keywordField)
	}
	doc.AddFieldMappingsAt("installed", bleve.NewBooleanFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// OpenOrCreateIndex opens the index at path, creating it when missing. An
// empty path gives an in-memory index.
func OpenOrCreateIndex(path string) (bleve.Index, error) {
	if path == "" {
		return bleve.NewMemOnly(newMapping())
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Debugf("[Index] Creating new index at %s", path)
		return bleve.New(path, newMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	return idx, nil
}

// IndexVersions makes idx hold exactly the given entries: each one is
// (re)indexed and documents for ids no longer listed are deleted.
func IndexVersions(idx bleve.Index, infos []updater.VersionSyncInfo) error {
	keep := make(map[string]struct{}, len(infos))
	batch := idx.NewBatch()
	for _, info := range infos {
		doc := FromSyncInfo(info)
		if doc.ID == "" {
			continue
		}
		keep[doc.ID] = struct{}{}
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("indexing %s: %w", doc.ID, err)
		}
	}

	existing, err := allIDs(idx)
	if err != nil {
		return err
	}
	stale := 0
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
			stale++
		}
	}

	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("writing index batch: %w", err)
	}
	log.Debugf("[Index] Indexed %d versions, removed %d stale", len(keep), stale)
	return nil
}

// RemoveVersion deletes id from the index.
func RemoveVersion(idx bleve.Index, id string) error {
	return idx.Delete(id)
}

func allIDs(idx bleve.Index) ([]string, error) {
	count, err := idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("counting index documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("listing index documents: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Search runs a bleve query string against idx and returns up to limit
// hits, best first.
func Search(idx bleve.Index, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"*"}
	req.SortBy([]string{"-_score", "id"})

	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, match := range res.Hits {
		hit := Hit{ID: match.ID, Score: match.Score}
		hit.Type, _ = match.Fields["type"].(string)
		hit.Year, _ = match.Fields["year"].(string)
		hit.MainClass, _ = match.Fields["mainClass"].(string)
		hit.Installed, _ = match.Fields["installed"].(bool)
		hits = append(hits, hit)
	}
	return hits, nil
}
