package index

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptyCatalog is returned when a course-name lookup runs against a
	// catalog with no courses.
	ErrEmptyCatalog = errors.New("course catalog is empty")

	// ErrCourseNotFound is returned when a requested course cannot be
	// resolved against the catalog.
	ErrCourseNotFound = errors.New("course not found")

	// ErrUnavailable wraps underlying store failures so callers can treat
	// them as a degraded (non-fatal) condition.
	ErrUnavailable = errors.New("index unavailable")
)

// Lesson is one lesson within a course.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// CourseEntry is a catalog row: the per-course metadata collection.
type CourseEntry struct {
	Title      string
	Instructor string
	CourseLink string
	Lessons    []Lesson
}

// Chunk is a piece of course content to be indexed. LessonNumber is nil for
// text that precedes the first lesson marker.
type Chunk struct {
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
	Content      string
}

// SearchResult is a retrieved chunk with its distance from the query
// (1 − cosine similarity; smaller is closer).
type SearchResult struct {
	CourseTitle  string
	LessonNumber *int
	Content      string
	Distance     float32
}

// SearchOptions narrows a chunk search. CourseName is matched fuzzily
// against the catalog; LessonNumber is an exact filter. TopK <= 0 falls back
// to the index default.
type SearchOptions struct {
	CourseName   string
	LessonNumber *int
	TopK         int
}

// Index stores two collections in one SQLite database: course_catalog
// (title embeddings, for fuzzy course-name resolution) and course_chunks
// (content embeddings, for semantic search). Nearest neighbor is a
// brute-force cosine scan with a bounded min-heap.
type Index struct {
	db       *sql.DB
	embedder *Embedder
	topK     int
}

// New creates an Index over a migrated database. topK is the default result
// count for searches that don't specify one.
func New(db *sql.DB, embedder *Embedder, topK int) *Index {
	if topK <= 0 {
		topK = 5
	}
	return &Index{db: db, embedder: embedder, topK: topK}
}

// UpsertCatalog embeds each course title and writes the catalog rows,
// replacing existing entries with the same title.
func (ix *Index) UpsertCatalog(ctx context.Context, entries []CourseEntry) error {
	if len(entries) == 0 {
		return nil
	}

	titles := make([]string, len(entries))
	for i, e := range entries {
		titles[i] = e.Title
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, titles)
	if err != nil {
		return fmt.Errorf("embedding course titles: %w", err)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning catalog transaction: %v", ErrUnavailable, err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO course_catalog (title, instructor, course_link, lessons_json, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: preparing catalog statement: %v", ErrUnavailable, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, e := range entries {
		lessonsJSON, err := json.Marshal(e.Lessons)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshalling lessons for %q: %w", e.Title, err)
		}
		if _, err := stmt.Exec(e.Title, e.Instructor, e.CourseLink, string(lessonsJSON), encodeFloat32s(vectors[i]), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: inserting catalog entry %q: %v", ErrUnavailable, e.Title, err)
		}
	}

	return tx.Commit()
}

// UpsertChunks embeds chunk contents in bounded-parallel batches and writes
// the chunk rows.
func (ix *Index) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning chunk transaction: %v", ErrUnavailable, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO course_chunks (id, course_title, lesson_number, chunk_index, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: preparing chunk statement: %v", ErrUnavailable, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, c := range chunks {
		var lesson sql.NullInt64
		if c.LessonNumber != nil {
			lesson = sql.NullInt64{Int64: int64(*c.LessonNumber), Valid: true}
		}
		if _, err := stmt.Exec(uuid.New().String(), c.CourseTitle, lesson, c.ChunkIndex, c.Content, encodeFloat32s(vectors[i]), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: inserting chunk %d of %q: %v", ErrUnavailable, c.ChunkIndex, c.CourseTitle, err)
		}
	}

	return tx.Commit()
}

// ResolveCourseName fuzzy-matches a partial course name against the catalog
// by embedding similarity and returns the closest catalog title. The closest
// title always wins when the catalog is non-empty; an empty catalog returns
// ErrEmptyCatalog.
func (ix *Index) ResolveCourseName(ctx context.Context, name string) (string, error) {
	count, err := ix.CourseCount(ctx)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return "", ErrEmptyCatalog
	}

	vec, err := ix.embedder.Embed(ctx, name)
	if err != nil {
		return "", err
	}
	queryNorm := norm(vec)
	if queryNorm == 0 {
		return "", ErrCourseNotFound
	}

	rows, err := ix.db.QueryContext(ctx, `SELECT title, embedding FROM course_catalog`)
	if err != nil {
		return "", fmt.Errorf("%w: querying catalog: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var best string
	bestScore := float32(-2)
	var buf []float32

	for rows.Next() {
		var title string
		var blob []byte
		if err := rows.Scan(&title, &blob); err != nil {
			return "", fmt.Errorf("%w: scanning catalog row: %v", ErrUnavailable, err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return "", fmt.Errorf("decoding embedding for %q: %w", title, err)
		}
		if score := cosine(vec, buf, queryNorm); score > bestScore {
			bestScore = score
			best = title
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("%w: iterating catalog: %v", ErrUnavailable, err)
	}

	if best == "" {
		return "", ErrCourseNotFound
	}
	return best, nil
}

// SearchChunks embeds the query and returns the nearest content chunks,
// ordered by ascending distance. A course-name filter is resolved against
// the catalog first; resolution failures propagate (ErrEmptyCatalog,
// ErrCourseNotFound) so callers can report them.
func (ix *Index) SearchChunks(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	resolvedCourse := ""
	if opts.CourseName != "" {
		title, err := ix.ResolveCourseName(ctx, opts.CourseName)
		if err != nil {
			return nil, err
		}
		resolvedCourse = title
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = ix.topK
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only id + embedding for rows passing the filters.
	scanQuery := `SELECT id, embedding FROM course_chunks`
	var conds []string
	var args []interface{}
	if resolvedCourse != "" {
		conds = append(conds, "course_title = ?")
		args = append(args, resolvedCourse)
	}
	if opts.LessonNumber != nil {
		conds = append(conds, "lesson_number = ?")
		args = append(args, *opts.LessonNumber)
	}
	if len(conds) > 0 {
		scanQuery += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := ix.db.QueryContext(ctx, scanQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chunks: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk row: %v", ErrUnavailable, err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vec, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating chunks: %v", ErrUnavailable, err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full rows only for the top-K IDs, best-first.
	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	queryArgs := make([]interface{}, len(topIDs))
	for i, id := range topIDs {
		queryArgs[i] = id
	}
	fullQuery := `SELECT id, course_title, lesson_number, content
		FROM course_chunks WHERE id IN (?` + strings.Repeat(",?", len(topIDs)-1) + `)`

	fullRows, err := ix.db.QueryContext(ctx, fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching top-K chunks: %v", ErrUnavailable, err)
	}
	defer fullRows.Close()

	byID := make(map[string]SearchResult, len(topIDs))
	for fullRows.Next() {
		var id, courseTitle, content string
		var lesson sql.NullInt64
		if err := fullRows.Scan(&id, &courseTitle, &lesson, &content); err != nil {
			return nil, fmt.Errorf("%w: scanning full chunk: %v", ErrUnavailable, err)
		}
		r := SearchResult{
			CourseTitle: courseTitle,
			Content:     content,
			Distance:    1 - scores[id],
		}
		if lesson.Valid {
			n := int(lesson.Int64)
			r.LessonNumber = &n
		}
		byID[id] = r
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating full chunks: %v", ErrUnavailable, err)
	}

	// The IN query doesn't preserve order; reassemble ascending by distance.
	results := make([]SearchResult, 0, len(topIDs))
	for _, id := range topIDs {
		if r, ok := byID[id]; ok {
			results = append(results, r)
		}
	}
	return results, nil
}

// Course returns the catalog entry for an exact title.
func (ix *Index) Course(ctx context.Context, title string) (CourseEntry, error) {
	var e CourseEntry
	var lessonsJSON string
	err := ix.db.QueryRowContext(ctx, `
		SELECT title, instructor, course_link, lessons_json
		FROM course_catalog WHERE title = ?`, title,
	).Scan(&e.Title, &e.Instructor, &e.CourseLink, &lessonsJSON)
	if err == sql.ErrNoRows {
		return CourseEntry{}, ErrCourseNotFound
	}
	if err != nil {
		return CourseEntry{}, fmt.Errorf("%w: querying course %q: %v", ErrUnavailable, title, err)
	}
	if err := json.Unmarshal([]byte(lessonsJSON), &e.Lessons); err != nil {
		return CourseEntry{}, fmt.Errorf("parsing lessons for %q: %w", title, err)
	}
	return e, nil
}

// HasCourse reports whether an exact title is already in the catalog.
func (ix *Index) HasCourse(ctx context.Context, title string) (bool, error) {
	var count int
	err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM course_catalog WHERE title = ?", title).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: checking course %q: %v", ErrUnavailable, title, err)
	}
	return count > 0, nil
}

// CourseCount returns the number of courses in the catalog.
func (ix *Index) CourseCount(ctx context.Context) (int, error) {
	var count int
	err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM course_catalog").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting courses: %v", ErrUnavailable, err)
	}
	return count, nil
}

// CourseTitles returns all catalog titles in insertion order.
func (ix *Index) CourseTitles(ctx context.Context) ([]string, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT title FROM course_catalog ORDER BY created_at ASC, title ASC")
	if err != nil {
		return nil, fmt.Errorf("%w: querying titles: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("%w: scanning title: %v", ErrUnavailable, err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// CoursesMetadata returns the full catalog with parsed lesson lists.
func (ix *Index) CoursesMetadata(ctx context.Context) ([]CourseEntry, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT title, instructor, course_link, lessons_json
		FROM course_catalog ORDER BY created_at ASC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying catalog: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []CourseEntry
	for rows.Next() {
		var e CourseEntry
		var lessonsJSON string
		if err := rows.Scan(&e.Title, &e.Instructor, &e.CourseLink, &lessonsJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning catalog row: %v", ErrUnavailable, err)
		}
		if err := json.Unmarshal([]byte(lessonsJSON), &e.Lessons); err != nil {
			return nil, fmt.Errorf("parsing lessons for %q: %w", e.Title, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LessonLink returns the link for a lesson of a course, or "" when the
// course or lesson has none recorded.
func (ix *Index) LessonLink(ctx context.Context, courseTitle string, lessonNumber int) (string, error) {
	entry, err := ix.Course(ctx, courseTitle)
	if err != nil {
		if errors.Is(err, ErrCourseNotFound) {
			return "", nil
		}
		return "", err
	}
	for _, l := range entry.Lessons {
		if l.Number == lessonNumber {
			return l.Link, nil
		}
	}
	return "", nil
}
