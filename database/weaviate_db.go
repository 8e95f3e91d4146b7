package database

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/baoteam/rag-bot/config"
	"github.com/baoteam/rag-bot/types"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const BATCH_SIZE = 200

// Weaviate property names for the chunk metadata schema. Weaviate requires
// camelCase, the rest of the system speaks the dashed metadata keys.
var metaKeyToProperty = map[string]string{
	types.MetaVideoKey:        "video",
	types.MetaSourceKey:       "source",
	types.MetaTitleKey:        "title",
	types.MetaPubDateKey:      "pubDate",
	types.MetaPubYearKey:      "pubYear",
	types.MetaPubYearMonthKey: "pubYearMonth",
	types.MetaTopicKey:        "topic",
}

func transcriptClassObject(className string) *models.Class {
	return &models.Class{
		Class: className,
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "docId", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "video", DataType: []string{"text"}},
			{Name: "pubDate", DataType: []string{"text"}},
			{Name: "pubYear", DataType: []string{"text"}},
			{Name: "pubYearMonth", DataType: []string{"text"}},
			{Name: "topic", DataType: []string{"text"}},
			{Name: "startAt", DataType: []string{"int"}},
			{Name: "chunkNo", DataType: []string{"int"}},
		},
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
	}
}

type WeaviateStore struct {
	client    *weaviate.Client
	className string
}

func NewWeaviateStore(cfg config.WeaviateConfig, collection string) (*WeaviateStore, error) {
	var scheme string
	if strings.Contains(cfg.Host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host := strings.TrimPrefix(cfg.Host, scheme+"://")
	clientCfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if cfg.APIKey != "" {
		clientCfg.AuthConfig = auth.ApiKey{
			Value: cfg.APIKey,
		}
	}
	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %v", err)
	}

	className := classNameFor(collection)
	schema, err := client.Schema().Getter().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %v", err)
	}
	hasClass := false
	for _, class := range schema.Classes {
		if class.Class == className {
			hasClass = true
			break
		}
	}
	if !hasClass {
		err = client.Schema().ClassCreator().WithClass(transcriptClassObject(className)).Do(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to create class %s: %v", className, err)
		}
	}
	return &WeaviateStore{
		client:    client,
		className: className,
	}, nil
}

// classNameFor upper-cases the first letter, which Weaviate enforces.
func classNameFor(collection string) string {
	if collection == "" {
		return "Transcripts"
	}
	return strings.ToUpper(collection[:1]) + collection[1:]
}

func (s *WeaviateStore) ReInit(ctx context.Context) error {
	err := s.client.Schema().ClassDeleter().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete class %s: %v", s.className, err)
	}
	err = s.client.Schema().ClassCreator().WithClass(transcriptClassObject(s.className)).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create class %s: %v", s.className, err)
	}
	return nil
}

func (s *WeaviateStore) AddDocuments(ctx context.Context, docs []types.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents and vectors length mismatch: %d != %d", len(docs), len(vectors))
	}
	total := len(docs)
	for i := 0; i < total; i += BATCH_SIZE {
		end := i + BATCH_SIZE
		if end > total {
			end = total
		}

		batcher := s.client.Batch().ObjectsBatcher()
		for j := i; j < end; j++ {
			batcher = batcher.WithObjects(&models.Object{
				Class:      s.className,
				ID:         deterministicID(docs[j].ID),
				Properties: documentProperties(docs[j]),
				Vector:     vectors[j],
			})
		}

		if _, err := batcher.Do(ctx); err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %v", i, end, err)
		}
		log.Printf("Indexed batch %d-%d of %d documents", i, end, total)
	}
	return nil
}

// deterministicID maps the content-hash document ID onto the UUID space
// Weaviate requires, so re-indexing the same chunk overwrites it.
func deterministicID(docID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String())
}

func documentProperties(doc types.Document) map[string]interface{} {
	return map[string]interface{}{
		"content":      doc.Content,
		"docId":        doc.ID,
		"title":        doc.Metadata.Title,
		"source":       doc.Metadata.Source,
		"video":        doc.Metadata.Video,
		"pubDate":      doc.Metadata.PubDate,
		"pubYear":      doc.Metadata.PubYear,
		"pubYearMonth": doc.Metadata.PubYearMonth,
		"topic":        doc.Metadata.Topic,
		"startAt":      doc.Metadata.StartAt,
		"chunkNo":      doc.Metadata.ChunkNo,
	}
}

func (s *WeaviateStore) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]types.ScoredDocument, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "docId"},
		{Name: "title"},
		{Name: "source"},
		{Name: "video"},
		{Name: "pubDate"},
		{Name: "pubYear"},
		{Name: "pubYearMonth"},
		{Name: "topic"},
		{Name: "startAt"},
		{Name: "chunkNo"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	where, err := buildMetadataFilter(filter)
	if err != nil {
		return nil, err
	}

	getBuilder := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector)
	if k > 0 {
		getBuilder = getBuilder.WithLimit(k)
	}
	if where != nil {
		getBuilder = getBuilder.WithWhere(where)
	}

	result, err := getBuilder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search failed: %v", err)
	}
	if result.Errors != nil {
		return nil, fmt.Errorf("search failed: %v", result.Errors[0].Message)
	}

	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	var scored []types.ScoredDocument
	if data, ok := get[s.className].([]interface{}); ok {
		for _, item := range data {
			props, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			doc := parseDocument(props)
			score := float32(0)
			if additional, ok := props["_additional"].(map[string]interface{}); ok {
				if distance, ok := additional["distance"].(float64); ok {
					// cosine distance in [0,2]; similarity mirrors it back
					score = 1 - float32(distance)
				}
			}
			scored = append(scored, types.ScoredDocument{Document: doc, Score: score})
		}
	}
	return scored, nil
}

func (s *WeaviateStore) DeleteByMetadata(ctx context.Context, key string, values []string) error {
	property, ok := metaKeyToProperty[key]
	if !ok {
		return fmt.Errorf("%w: %s is not a metadata filter field", types.ErrValidation, key)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: no filter values given", types.ErrValidation)
	}
	where := filters.Where().
		WithPath([]string{property}).
		WithOperator(filters.ContainsAny).
		WithValueString(values...)

	result, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete by %s: %v", key, err)
	}
	if result != nil && result.Results != nil {
		log.Printf("Deleted %d documents by %s", result.Results.Successful, key)
	}
	return nil
}

func parseDocument(props map[string]interface{}) types.Document {
	return types.Document{
		ID:      stringProp(props, "docId"),
		Content: stringProp(props, "content"),
		Metadata: types.Metadata{
			Title:        stringProp(props, "title"),
			Source:       stringProp(props, "source"),
			Video:        stringProp(props, "video"),
			PubDate:      stringProp(props, "pubDate"),
			PubYear:      stringProp(props, "pubYear"),
			PubYearMonth: stringProp(props, "pubYearMonth"),
			Topic:        stringProp(props, "topic"),
			StartAt:      intProp(props, "startAt"),
			ChunkNo:      intProp(props, "chunkNo"),
		},
	}
}

func stringProp(props map[string]interface{}, name string) string {
	if v, ok := props[name].(string); ok {
		return v
	}
	return ""
}

func intProp(props map[string]interface{}, name string) int {
	if v, ok := props[name].(float64); ok {
		return int(v)
	}
	return 0
}

func buildMetadataFilter(filter map[string]string) (*filters.WhereBuilder, error) {
	var conditions []*filters.WhereBuilder
	for key, value := range filter {
		if value == "" {
			continue
		}
		property, ok := metaKeyToProperty[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a metadata filter field", types.ErrValidation, key)
		}
		conditions = append(conditions, filters.Where().
			WithPath([]string{property}).
			WithOperator(filters.Equal).
			WithValueString(value))
	}
	switch len(conditions) {
	case 0:
		return nil, nil
	case 1:
		return conditions[0], nil
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(conditions), nil
	}
}
