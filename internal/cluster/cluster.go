// Package cluster groups the paper library into thematic clusters: it exports
// every stored vector, partitions them with k-means, and asks the agent model
// to name each cluster's common theme from a sample of its papers.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/paperflow/paperflow-go/internal/logging"
	"github.com/paperflow/paperflow-go/internal/rag"
)

// scrollBatchSize is the page size used when exporting the collection.
const scrollBatchSize = 100

// maxSamplePapers caps how many papers of a cluster are shown to the labeler.
const maxSamplePapers = 5

// maxSampleChars truncates each paper's content in the labeler prompt.
const maxSampleChars = 300

// labelPrompt asks for scored keyword tags describing a cluster's theme.
const labelPrompt = `Analyze the following academic papers and generate keyword tags with
relevance scores.

Papers in this cluster (%d total):
%s

Task:
1. Identify 3-5 keywords that best describe the common theme of these papers
2. Score each keyword from 0.0 to 1.0 based on how well it represents ALL
   papers in this cluster
3. Format: keyword1 (score), keyword2 (score), keyword3 (score)

Example output:
Federated Learning (0.95), Privacy Preservation (0.82), Gradient Compression (0.71)

Requirements:
- Each keyword should be 1-3 words
- Use English academic terminology
- Output ONLY the formatted keywords with scores, nothing else

Keywords with scores:`

// Paper is one library entry carried through clustering.
type Paper struct {
	// ID is the vector store point identifier.
	ID string
	// Title is the paper title.
	Title string
	// Venue is the publication venue.
	Venue string
	// Year is the publication year.
	Year string
	// Content is the stored summary document.
	Content string
}

// Cluster is one thematic group of papers.
type Cluster struct {
	// ID is the cluster index (0-based).
	ID int
	// Label is the model-generated theme description.
	Label string
	// Papers lists the cluster's members.
	Papers []Paper
}

// Service runs the clustering workflow over a vector store.
type Service struct {
	store   rag.VectorStore
	labeler model.BaseChatModel
}

// NewService constructs a Service. labeler may be nil, in which case clusters
// get positional names instead of model-generated themes.
func NewService(store rag.VectorStore, labeler model.BaseChatModel) *Service {
	return &Service{store: store, labeler: labeler}
}

// observation adapts one stored vector to the k-means interface while
// remembering which paper it belongs to.
type observation struct {
	idx    int
	coords clusters.Coordinates
}

// Coordinates returns the vector.
func (o observation) Coordinates() clusters.Coordinates { return o.coords }

// Distance returns the squared euclidean distance to point.
func (o observation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Run exports the whole collection, partitions it into k clusters, and labels
// each cluster. k is clamped to the number of papers.
func (s *Service) Run(ctx context.Context, k int) ([]Cluster, error) {
	log := logging.FromContext(ctx)

	papers, vectors, err := s.fetchAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, fmt.Errorf("cluster: the library is empty")
	}
	log.Info("cluster: exported library", slog.Int("papers", len(papers)))

	if k <= 0 {
		k = 5
	}
	if k > len(papers) {
		k = len(papers)
	}

	var obs clusters.Observations
	for i, v := range vectors {
		coords := make(clusters.Coordinates, len(v))
		for j, f := range v {
			coords[j] = float64(f)
		}
		obs = append(obs, observation{idx: i, coords: coords})
	}

	km := kmeans.New()
	partition, err := km.Partition(obs, k)
	if err != nil {
		return nil, fmt.Errorf("cluster: k-means partition failed: %w", err)
	}

	result := make([]Cluster, 0, len(partition))
	for i, c := range partition {
		group := Cluster{ID: i}
		for _, o := range c.Observations {
			po, ok := o.(observation)
			if !ok {
				continue
			}
			group.Papers = append(group.Papers, papers[po.idx])
		}
		group.Label = s.labelCluster(ctx, group)
		log.Info("cluster: labeled",
			slog.Int("cluster", group.ID),
			slog.Int("papers", len(group.Papers)),
			slog.String("label", group.Label),
		)
		result = append(result, group)
	}
	return result, nil
}

// fetchAll scrolls the entire collection into memory. Paper libraries are
// thousands of summary documents at most, so this stays small.
func (s *Service) fetchAll(ctx context.Context) ([]Paper, [][]float32, error) {
	var papers []Paper
	var vectors [][]float32

	cursor := ""
	for {
		points, next, err := s.store.Scroll(ctx, scrollBatchSize, cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("cluster: collection export failed: %w", err)
		}
		for _, p := range points {
			papers = append(papers, Paper{
				ID:      p.Document.ID,
				Title:   p.Document.Metadata["title"],
				Venue:   p.Document.Metadata["venue"],
				Year:    p.Document.Metadata["year"],
				Content: p.Document.Content,
			})
			vectors = append(vectors, p.Vector)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return papers, vectors, nil
}

// labelCluster asks the labeler model to name the cluster's theme from a
// sample of its papers. Failures fall back to a positional name.
func (s *Service) labelCluster(ctx context.Context, c Cluster) string {
	fallback := fmt.Sprintf("Cluster %d", c.ID)
	if s.labeler == nil || len(c.Papers) == 0 {
		return fallback
	}

	sample := c.Papers
	if len(sample) > maxSamplePapers {
		sample = sample[:maxSamplePapers]
	}
	var b strings.Builder
	for _, p := range sample {
		title := p.Title
		if title == "" {
			title = "Unknown"
		}
		content := p.Content
		if len(content) > maxSampleChars {
			content = content[:maxSampleChars] + "..."
		}
		fmt.Fprintf(&b, "- Title: %s\n  Summary: %s\n", title, content)
	}

	resp, err := s.labeler.Generate(ctx, []*schema.Message{
		schema.UserMessage(fmt.Sprintf(labelPrompt, len(c.Papers), b.String())),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("cluster: label generation failed",
			slog.Int("cluster", c.ID),
			slog.Any("error", err),
		)
		return fallback
	}
	label := strings.Trim(strings.TrimSpace(resp.Content), `"'`)
	if label == "" {
		return fallback
	}
	return label
}
