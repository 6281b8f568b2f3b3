package knowledge

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"conversa/internal/domain"
)

// Search implements domain.KnowledgeSearcher. It scans the bot's chunks,
// scores each against the query vector with cosine similarity, and
// returns the top results in descending similarity order. Chunks with
// non-positive similarity are dropped.
func (s *Store) Search(ctx context.Context, botID string, query []float32, limit int) ([]domain.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, topic, content, embedding FROM chunks WHERE bot_id = ?", botID)
	if err != nil {
		return nil, fmt.Errorf("%w: query chunks: %v", domain.ErrVectorSearch, err)
	}
	defer rows.Close()

	var candidates []domain.RetrievedChunk
	for rows.Next() {
		var (
			chunk domain.RetrievedChunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.Topic, &chunk.Content, &blob); err != nil {
			s.logger.Warn("knowledge search: skipping unreadable chunk", "bot_id", botID, "error", err)
			continue
		}

		sim := cosineSimilarity(query, bytesToFloat32(blob))
		if sim <= 0 {
			continue
		}

		chunk.BotID = botID
		chunk.Similarity = float64(sim)
		candidates = append(candidates, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan chunks: %v", domain.ErrVectorSearch, err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||).
// Returns 0 for zero-length vectors, length mismatch, or NaN/Inf results.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	result := dot / denom
	if math.IsNaN(float64(result)) || math.IsInf(float64(result), 0) {
		return 0
	}
	return result
}

// float32ToBytes converts a float32 slice to little-endian bytes.
func float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32 converts little-endian bytes back to a float32 slice.
func bytesToFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
