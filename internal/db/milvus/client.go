// Package milvus wraps the Milvus v2 client with the collection layout used for chunk vectors.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kailas-cloud/ragdesk/internal/db"
)

// Field names of a chunk collection.
const (
	FieldID       = "id"
	FieldVector   = "embedding"
	FieldSource   = "source"
	FieldFilename = "filename"
	FieldPage     = "page"
	FieldText     = "text"
)

// Varchar limits of a chunk collection.
const (
	maxIDLen      = 512
	maxPathLen    = 2048
	maxTextLen    = 65535
	searchParamEF = "64"
)

// Config holds connection parameters.
type Config struct {
	Address  string
	Username string
	Password string
	DBName   string
	Timeout  time.Duration
}

// CollectionSpec describes a chunk collection.
type CollectionSpec struct {
	Name            string
	Dimension       int
	HNSWM           int
	HNSWEFConstruct int
}

// Row is one chunk record. Page is -1 when unknown.
type Row struct {
	ID       string
	Vector   []float32
	Source   string
	Filename string
	Page     int64
	Text     string
}

// Hit is a single search result.
type Hit struct {
	Row
	Score float32
}

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
}

// New connects to Milvus.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("milvus address is required")
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}
	return &Client{client: c}, nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Close(ctx); err != nil {
		return fmt.Errorf("close milvus: %w", err)
	}
	return nil
}

// Ping checks connectivity by listing collections.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.ListCollections(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// ListCollections returns the names of all collections in the database.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, &db.Error{Op: "ListCollections", Err: err}
	}
	return names, nil
}

// CreateCollection creates a chunk collection with an HNSW cosine index and starts loading it.
// An existing collection yields db.ErrIndexExists. Loading is asynchronous; poll LoadState.
func (c *Client) CreateCollection(ctx context.Context, spec CollectionSpec) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(spec.Name))
	if err != nil {
		return &db.Error{Op: "HasCollection", Err: err}
	}
	if exists {
		return db.ErrIndexExists
	}

	if err := c.client.CreateCollection(ctx,
		milvusclient.NewCreateCollectionOption(spec.Name, chunkSchema(spec))); err != nil {
		return &db.Error{Op: "CreateCollection", Err: err}
	}

	idx := index.NewHNSWIndex(entity.COSINE, spec.HNSWM, spec.HNSWEFConstruct)
	task, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(spec.Name, FieldVector, idx))
	if err != nil {
		return &db.Error{Op: "CreateIndex", Err: err}
	}
	if err := task.Await(ctx); err != nil {
		return &db.Error{Op: "CreateIndex", Err: err}
	}

	if _, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(spec.Name)); err != nil {
		return &db.Error{Op: "LoadCollection", Err: err}
	}
	return nil
}

func chunkSchema(spec CollectionSpec) *entity.Schema {
	return entity.NewSchema().
		WithName(spec.Name).
		WithDescription("ragdesk document chunks").
		WithField(entity.NewField().
			WithName(FieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).
			WithMaxLength(maxIDLen)).
		WithField(entity.NewField().
			WithName(FieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(spec.Dimension))).
		WithField(entity.NewField().
			WithName(FieldSource).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxPathLen)).
		WithField(entity.NewField().
			WithName(FieldFilename).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxPathLen)).
		WithField(entity.NewField().
			WithName(FieldPage).
			WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().
			WithName(FieldText).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxTextLen))
}

// EnsureLoaded reports whether the collection is loaded and searchable.
// A released collection, as left by a Milvus restart, is sent a load request
// so that repeated calls converge on true.
func (c *Client) EnsureLoaded(ctx context.Context, name string) (bool, error) {
	state, err := c.client.GetLoadState(ctx, milvusclient.NewGetLoadStateOption(name))
	if err != nil {
		return false, &db.Error{Op: "GetLoadState", Err: err}
	}
	ready, load := loadStep(state)
	if load {
		if _, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name)); err != nil {
			return false, &db.Error{Op: "LoadCollection", Err: err}
		}
	}
	return ready, nil
}

// loadStep decides from a load state whether the collection is ready and
// whether a load request has to be issued.
func loadStep(state entity.LoadState) (ready, load bool) {
	switch state.State {
	case entity.LoadStateLoaded:
		return true, false
	case entity.LoadStateNotLoad:
		return false, true
	default:
		return false, false
	}
}

// Upsert writes rows by primary key and flushes so they are searchable right away.
func (c *Client) Upsert(ctx context.Context, collection string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	if _, err := c.client.Upsert(ctx,
		milvusclient.NewColumnBasedInsertOption(collection, rowColumns(rows)...)); err != nil {
		return &db.Error{Op: "Upsert", Err: err}
	}

	task, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return &db.Error{Op: "Flush", Err: err}
	}
	if err := task.Await(ctx); err != nil {
		return &db.Error{Op: "Flush", Err: err}
	}
	return nil
}

func rowColumns(rows []Row) []column.Column {
	ids := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	sources := make([]string, len(rows))
	filenames := make([]string, len(rows))
	pages := make([]int64, len(rows))
	texts := make([]string, len(rows))

	for i, r := range rows {
		ids[i] = r.ID
		vectors[i] = r.Vector
		sources[i] = r.Source
		filenames[i] = r.Filename
		pages[i] = r.Page
		texts[i] = truncate(r.Text, maxTextLen)
	}

	return []column.Column{
		column.NewColumnVarChar(FieldID, ids),
		column.NewColumnFloatVector(FieldVector, len(vectors[0]), vectors),
		column.NewColumnVarChar(FieldSource, sources),
		column.NewColumnVarChar(FieldFilename, filenames),
		column.NewColumnInt64(FieldPage, pages),
		column.NewColumnVarChar(FieldText, texts),
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

// Search runs a COSINE ANN search. filter is a Milvus boolean expression, empty for none.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int, filter string) ([]Hit, error) {
	opt := milvusclient.NewSearchOption(collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldVector).
		WithSearchParam("ef", searchParamEF).
		WithOutputFields(FieldSource, FieldFilename, FieldPage, FieldText)
	if filter != "" {
		opt = opt.WithFilter(filter)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, &db.Error{Op: "Search", Err: err}
	}
	if len(results) == 0 {
		return nil, nil
	}
	return parseResultSet(results[0])
}

func parseResultSet(rs milvusclient.ResultSet) ([]Hit, error) {
	if rs.Err != nil {
		return nil, &db.Error{Op: "Search", Err: rs.Err}
	}

	hits := make([]Hit, rs.ResultCount)
	if ids, ok := rs.IDs.(*column.ColumnVarChar); ok {
		for i, id := range ids.Data() {
			if i < len(hits) {
				hits[i].ID = id
			}
		}
	}
	for i := range hits {
		if i < len(rs.Scores) {
			hits[i].Score = rs.Scores[i]
		}
		hits[i].Page = -1
	}

	for _, col := range rs.Fields {
		switch typed := col.(type) {
		case *column.ColumnVarChar:
			for i, v := range typed.Data() {
				if i >= len(hits) {
					break
				}
				switch typed.Name() {
				case FieldSource:
					hits[i].Source = v
				case FieldFilename:
					hits[i].Filename = v
				case FieldText:
					hits[i].Text = v
				}
			}
		case *column.ColumnInt64:
			if typed.Name() != FieldPage {
				continue
			}
			for i, v := range typed.Data() {
				if i < len(hits) {
					hits[i].Page = v
				}
			}
		}
	}
	return hits, nil
}

// SourceFilter builds an expression matching one source path.
func SourceFilter(source string) string {
	if source == "" {
		return ""
	}
	return FieldSource + " == " + strconv.Quote(source)
}
