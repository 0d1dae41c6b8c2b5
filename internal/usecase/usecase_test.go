package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ragqa/internal/adapter/cache"
	"ragqa/internal/adapter/chunker"
	"ragqa/internal/adapter/embedding"
	"ragqa/internal/adapter/extract"
	"ragqa/internal/adapter/fs"
	"ragqa/internal/adapter/llm"
	"ragqa/internal/domain"
	"ragqa/internal/logging"
	"ragqa/internal/port"
)

type fixture struct {
	retriever *Retriever
	embedder  *embedding.MockEmbedder
	llm       *llm.StubGenerator
	qa        *QAService
	docsDir   string
}

func newFixture(t *testing.T, embedder port.Embedder, opts RetrieverOptions) *fixture {
	t.Helper()
	docsDir := filepath.Join(t.TempDir(), "docs")

	ch, err := chunker.NewWindowChunker(1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	log := logging.Discard()
	mock, _ := embedder.(*embedding.MockEmbedder)
	if embedder == nil {
		mock = embedding.NewMockEmbedder(256)
		embedder = mock
	}

	loader := NewDocumentLoader(fs.NewWalker(nil, nil), log)
	r := NewRetriever(extract.New(), ch, embedder, loader, opts, log)
	stub := llm.NewStubGenerator("The sky is blue.")
	gen := NewAnswerGenerator(stub, 4000, log)

	return &fixture{
		retriever: r,
		embedder:  mock,
		llm:       stub,
		qa:        NewQAService(r, gen, docsDir, log),
		docsDir:   docsDir,
	}
}

func textDoc(source, text string) domain.Document {
	return domain.Document{Source: source, Format: domain.FormatText, Data: []byte(text)}
}

// failingEmbedder fails every document call after the first ok calls.
type failingEmbedder struct {
	inner *embedding.MockEmbedder
	ok    int64
	calls atomic.Int64
}

func (e *failingEmbedder) Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	if mode == domain.ModeDocument && e.calls.Add(1) > e.ok {
		return nil, errors.New("quota exceeded")
	}
	return e.inner.Embed(ctx, texts, mode)
}

func (e *failingEmbedder) ModelName() string { return "failing" }

// shuffledEmbedder delays early batches so they finish after later ones.
type shuffledEmbedder struct {
	inner *embedding.MockEmbedder
	n     atomic.Int64
}

func (e *shuffledEmbedder) Embed(ctx context.Context, texts []string, mode domain.EmbeddingMode) ([][]float32, error) {
	if mode == domain.ModeDocument {
		delay := 20 - e.n.Add(1)*4
		if delay > 0 {
			time.Sleep(time.Duration(delay) * time.Millisecond)
		}
	}
	return e.inner.Embed(ctx, texts, mode)
}

func (e *shuffledEmbedder) ModelName() string { return "shuffled" }

func TestAskEndToEnd(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	ctx := context.Background()

	docs := []domain.Document{
		textDoc("sky.txt", "The sky is blue because of Rayleigh scattering."),
		textDoc("grass.txt", "Grass is green because of chlorophyll."),
	}
	report, err := f.retriever.BuildIndex(ctx, docs, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if report.Documents != 2 || report.Chunks != 2 {
		t.Errorf("expected 2 documents and 2 chunks, got %d/%d", report.Documents, report.Chunks)
	}

	res, err := f.retriever.Retrieve(ctx, "What color is the sky?")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if res.Chunks[0].Chunk.Source != "sky.txt" {
		t.Errorf("expected sky.txt ranked first, got %s", res.Chunks[0].Chunk.Source)
	}

	got := f.qa.Ask(ctx, "What color is the sky?")
	if got.Status != domain.StatusSuccess || got.Answer != "The sky is blue." {
		t.Errorf("unexpected result %+v", got)
	}

	prompts := f.llm.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("expected 1 generation call, got %d", len(prompts))
	}
	p := prompts[0]
	ctxPos := strings.Index(p, "Rayleigh scattering")
	queryPos := strings.Index(p, "Query: What color is the sky?")
	if ctxPos < 0 || queryPos < 0 || ctxPos > queryPos {
		t.Errorf("prompt should hold context before the query:\n%s", p)
	}
	if !strings.Contains(p[queryPos:], "enough information") {
		t.Errorf("prompt should end with the answering instruction:\n%s", p)
	}
}

func TestRetrieveOneQueryEmbedPerQuery(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	ctx := context.Background()
	if _, err := f.retriever.BuildIndex(ctx, []domain.Document{textDoc("a.txt", "alpha beta")}, nil); err != nil {
		t.Fatal(err)
	}
	docCalls := f.embedder.Calls(domain.ModeDocument)

	for i := 0; i < 3; i++ {
		if _, err := f.retriever.Retrieve(ctx, "alpha"); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.embedder.Calls(domain.ModeQuery); got != 3 {
		t.Errorf("expected 3 query embeds, got %d", got)
	}
	if got := f.embedder.Calls(domain.ModeDocument); got != docCalls {
		t.Errorf("queries must not embed documents, calls went %d -> %d", docCalls, got)
	}
}

func TestRetrieveTopKClamped(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{TopK: 10})
	ctx := context.Background()
	docs := []domain.Document{textDoc("a.txt", "one"), textDoc("b.txt", "two")}
	if _, err := f.retriever.BuildIndex(ctx, docs, nil); err != nil {
		t.Fatal(err)
	}
	res, err := f.retriever.Retrieve(ctx, "one")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 2 {
		t.Errorf("expected results clamped to 2, got %d", len(res.Chunks))
	}
}

func TestRetrieveWithoutIndexSkipsEmbedder(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})

	_, err := f.retriever.Retrieve(context.Background(), "anything")
	var ec *domain.EmptyCorpusError
	if !errors.As(err, &ec) || ec.Reason != domain.NoDocuments {
		t.Fatalf("expected NoDocuments, got %v", err)
	}
	if f.embedder.Calls(domain.ModeQuery) != 0 {
		t.Error("embedder should not be called without an index")
	}
}

func TestBuildIndexEmptyCorpus(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	ctx := context.Background()

	_, err := f.retriever.BuildIndex(ctx, nil, nil)
	var ec *domain.EmptyCorpusError
	if !errors.As(err, &ec) || ec.Reason != domain.NoDocuments {
		t.Fatalf("expected NoDocuments, got %v", err)
	}

	got := f.qa.Ask(ctx, "hello?")
	if got.Status != domain.StatusError || got.Message != domain.MsgNoDocuments {
		t.Errorf("unexpected result %+v", got)
	}
	if f.embedder.Calls(domain.ModeQuery) != 0 || len(f.llm.Prompts()) != 0 {
		t.Error("no service should be called for an empty corpus")
	}
}

func TestBuildIndexNoContent(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	ctx := context.Background()

	docs := []domain.Document{
		{Source: "broken.pdf", Format: domain.FormatPDF, Data: []byte("not a pdf")},
		textDoc("blank.txt", "   \n\t "),
	}
	report, err := f.retriever.BuildIndex(ctx, docs, nil)
	var ec *domain.EmptyCorpusError
	if !errors.As(err, &ec) || ec.Reason != domain.NoContent {
		t.Fatalf("expected NoContent, got %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].Source != "broken.pdf" {
		t.Errorf("expected broken.pdf reported as failed, got %+v", report.Failed)
	}

	got := f.qa.Ask(ctx, "hello?")
	if got.Message != domain.MsgNoDocuments {
		t.Errorf("expected %q, got %+v", domain.MsgNoDocuments, got)
	}
}

func TestBuildIndexSkipsUnknownFormats(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	docs := []domain.Document{
		{Source: "sheet.xlsx", Format: domain.FormatUnknown, Data: []byte("cells")},
		textDoc("notes.txt", "some notes"),
	}
	report, err := f.retriever.BuildIndex(context.Background(), docs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "sheet.xlsx" {
		t.Errorf("expected sheet.xlsx skipped, got %v", report.Skipped)
	}
	if report.Documents != 1 {
		t.Errorf("expected 1 indexed document, got %d", report.Documents)
	}

	// only unknown formats counts as no documents at all
	_, err = f.retriever.BuildIndex(context.Background(), docs[:1], nil)
	var ec *domain.EmptyCorpusError
	if !errors.As(err, &ec) || ec.Reason != domain.NoDocuments {
		t.Errorf("expected NoDocuments, got %v", err)
	}
}

func TestBuildIndexFailsOnEmbeddingErrorAndKeepsOldIndex(t *testing.T) {
	emb := &failingEmbedder{inner: embedding.NewMockEmbedder(64), ok: 1}
	f := newFixture(t, emb, RetrieverOptions{BatchSize: 1, Concurrency: 1})
	ctx := context.Background()

	if _, err := f.retriever.BuildIndex(ctx, []domain.Document{textDoc("old.txt", "old content")}, nil); err != nil {
		t.Fatal(err)
	}

	docs := []domain.Document{textDoc("a.txt", "first"), textDoc("b.txt", "second")}
	_, err := f.retriever.BuildIndex(ctx, docs, nil)
	var es *domain.EmbeddingServiceError
	if !errors.As(err, &es) {
		t.Fatalf("expected EmbeddingServiceError, got %v", err)
	}

	res, err := f.retriever.Retrieve(ctx, "content")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.Source != "old.txt" {
		t.Errorf("previous index should stay active, got %+v", res.Chunks)
	}
}

func TestBuildIndexKeepsChunkOrderUnderConcurrency(t *testing.T) {
	emb := &shuffledEmbedder{inner: embedding.NewMockEmbedder(512)}
	f := newFixture(t, emb, RetrieverOptions{BatchSize: 1, Concurrency: 4})
	ctx := context.Background()

	words := []string{"apple", "banana", "cherry", "durian", "elderberry", "fig"}
	var docs []domain.Document
	for _, w := range words {
		docs = append(docs, textDoc(w+".txt", w+" "+w+" "+w))
	}

	var lastDone atomic.Int64
	report, err := f.retriever.BuildIndex(ctx, docs, func(done, total int) {
		if total != len(words) {
			t.Errorf("expected total %d, got %d", len(words), total)
		}
		lastDone.Store(int64(done))
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Chunks != len(words) || lastDone.Load() != int64(len(words)) {
		t.Errorf("expected %d chunks embedded, got %d (progress %d)", len(words), report.Chunks, lastDone.Load())
	}

	for _, w := range words {
		res, err := f.retriever.Retrieve(ctx, w)
		if err != nil {
			t.Fatal(err)
		}
		if res.Chunks[0].Chunk.Source != w+".txt" {
			t.Errorf("query %q: expected %s.txt first, got %s", w, w, res.Chunks[0].Chunk.Source)
		}
	}
}

func TestConcurrentQueriesDuringRebuild(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{TopK: 4, BatchSize: 1, Concurrency: 2})
	ctx := context.Background()

	set := func(prefix string) []domain.Document {
		var docs []domain.Document
		for i := 0; i < 4; i++ {
			docs = append(docs, textDoc(fmt.Sprintf("%s-%d.txt", prefix, i), fmt.Sprintf("shared topic number %d", i)))
		}
		return docs
	}
	if _, err := f.retriever.BuildIndex(ctx, set("old"), nil); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := f.retriever.Retrieve(ctx, "shared topic")
				if err != nil {
					t.Errorf("retrieve failed: %v", err)
					return
				}
				prefix := strings.SplitN(res.Chunks[0].Chunk.Source, "-", 2)[0]
				for _, c := range res.Chunks {
					if !strings.HasPrefix(c.Chunk.Source, prefix+"-") {
						t.Errorf("result mixes index generations: %+v", res.Chunks)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		if _, err := f.retriever.BuildIndex(ctx, set(fmt.Sprintf("gen%d", i)), nil); err != nil {
			t.Error(err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestRetrieveUsesCacheWithinGeneration(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	f.retriever.WithCache(cache.NewQueryCache(16, time.Minute))
	ctx := context.Background()

	if _, err := f.retriever.BuildIndex(ctx, []domain.Document{textDoc("a.txt", "alpha")}, nil); err != nil {
		t.Fatal(err)
	}
	f.retriever.Retrieve(ctx, "alpha")
	f.retriever.Retrieve(ctx, "alpha")
	if got := f.embedder.Calls(domain.ModeQuery); got != 1 {
		t.Errorf("expected cached second lookup, got %d query embeds", got)
	}

	if _, err := f.retriever.BuildIndex(ctx, []domain.Document{textDoc("b.txt", "alpha again")}, nil); err != nil {
		t.Fatal(err)
	}
	res, _ := f.retriever.Retrieve(ctx, "alpha")
	if got := f.embedder.Calls(domain.ModeQuery); got != 2 {
		t.Errorf("rebuild should invalidate the cache, got %d query embeds", got)
	}
	if res.Chunks[0].Chunk.Source != "b.txt" {
		t.Errorf("expected result from the new index, got %s", res.Chunks[0].Chunk.Source)
	}
}

func TestAskEmptyQuery(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	got := f.qa.Ask(context.Background(), "   ")
	if got.Status != domain.StatusError || got.Message != domain.MsgEmptyQuery {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestGenerateWithoutContext(t *testing.T) {
	stub := llm.NewStubGenerator("should not be used")
	g := NewAnswerGenerator(stub, 0, logging.Discard())

	if got := g.Generate(context.Background(), "q", nil); got != domain.NotEnoughInformation {
		t.Errorf("expected insufficient information answer, got %q", got)
	}
	if len(stub.Prompts()) != 0 {
		t.Error("model should not be called without context")
	}
}

func TestGenerateFallback(t *testing.T) {
	cases := []struct {
		name string
		stub *llm.StubGenerator
	}{
		{"service error", &llm.StubGenerator{Err: errors.New("503")}},
		{"blank reply", llm.NewStubGenerator("  \n ")},
	}
	for _, tc := range cases {
		g := NewAnswerGenerator(tc.stub, 0, logging.Discard())
		if got := g.Generate(context.Background(), "q", []string{"ctx"}); got != domain.FallbackAnswer {
			t.Errorf("%s: expected fallback answer, got %q", tc.name, got)
		}
	}
}

func TestFitBudgetKeepsTopChunk(t *testing.T) {
	g := NewAnswerGenerator(llm.NewStubGenerator(""), 5, logging.Discard())
	long := strings.Repeat("word ", 50)
	chunks := []string{long, "short", "tiny"}

	kept := g.FitBudget(chunks)
	if len(kept) != 1 || kept[0] != long {
		t.Errorf("expected only the top chunk, got %d chunks", len(kept))
	}

	g = NewAnswerGenerator(llm.NewStubGenerator(""), 0, logging.Discard())
	if got := g.FitBudget(chunks); len(got) != 3 {
		t.Errorf("zero budget should keep everything, got %d", len(got))
	}
}

func TestBuildPromptJoinsChunks(t *testing.T) {
	g := NewAnswerGenerator(llm.NewStubGenerator(""), 0, logging.Discard())
	p, err := g.BuildPrompt("why?", []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p, "first\n\nsecond") {
		t.Errorf("chunks should be separated by a blank line:\n%s", p)
	}
}

func TestUploadReplacesDocumentsAndRebuilds(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	ctx := context.Background()

	if err := os.MkdirAll(f.docsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.docsDir, "stale.txt"), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	res := f.qa.Upload(ctx, []fs.Upload{
		{Name: "sky.txt", Body: strings.NewReader("The sky is blue.")},
		{Name: "sea.txt", Body: strings.NewReader("The sea is salty.")},
	})
	if res.Status != domain.StatusSuccess || res.Message != "Successfully uploaded 2 files" {
		t.Fatalf("unexpected upload result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(f.docsDir, "stale.txt")); !os.IsNotExist(err) {
		t.Error("previous documents should be removed")
	}

	stats, ok := f.qa.Stats()
	if !ok || stats.Documents != 2 || stats.Chunks != 2 {
		t.Errorf("unexpected stats %+v (ok=%v)", stats, ok)
	}

	got := f.qa.Ask(ctx, "Is the sea salty?")
	if got.Status != domain.StatusSuccess {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestUploadOfUnreadableDocuments(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	res := f.qa.Upload(context.Background(), []fs.Upload{
		{Name: "scan.pdf", Body: strings.NewReader("garbage")},
	})
	if res.Status != domain.StatusError || res.Message != domain.MsgNoContent {
		t.Errorf("unexpected upload result %+v", res)
	}
}

func TestDocumentLoader(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"a.txt": "A", "b.docx": "B", "c.bin": "C"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	loader := NewDocumentLoader(fs.NewWalker(nil, nil), logging.Discard())
	docs, failed, err := loader.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 0 {
		t.Errorf("unexpected failures %v", failed)
	}
	formats := map[string]domain.Format{}
	for _, d := range docs {
		formats[filepath.Base(d.Source)] = d.Format
	}
	want := map[string]domain.Format{"a.txt": domain.FormatText, "b.docx": domain.FormatDocx, "c.bin": domain.FormatUnknown}
	for name, f := range want {
		if formats[name] != f {
			t.Errorf("%s: expected format %s, got %s", name, f, formats[name])
		}
	}
}

func TestEmptyBuildClearsPreviousIndex(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	ctx := context.Background()

	if _, err := f.retriever.BuildIndex(ctx, []domain.Document{textDoc("a.txt", "alpha")}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.retriever.BuildIndex(ctx, nil, nil); err == nil {
		t.Fatal("expected empty corpus error")
	}

	if _, ok := f.retriever.Stats(); ok {
		t.Error("stats should be unavailable after an empty build")
	}
	got := f.qa.Ask(ctx, "alpha?")
	if got.Message != domain.MsgNoDocuments {
		t.Errorf("expected %q, got %+v", domain.MsgNoDocuments, got)
	}
	if f.embedder.Calls(domain.ModeQuery) != 0 {
		t.Error("embedder should not be called after the index was cleared")
	}
}

func TestSingleChunkAnswerVerbatim(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{})
	ctx := context.Background()
	const text = "The sky is blue. Water is wet."

	if _, err := f.retriever.BuildIndex(ctx, []domain.Document{textDoc("facts.txt", text)}, nil); err != nil {
		t.Fatal(err)
	}
	res, err := f.retriever.Retrieve(ctx, "What color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.Text != text {
		t.Fatalf("expected the single chunk, got %+v", res.Chunks)
	}

	f.llm.Reply = "Blue."
	got := f.qa.Ask(ctx, "What color is the sky?")
	if got.Answer != "Blue." {
		t.Errorf("expected the model reply verbatim, got %+v", got)
	}
	prompts := f.llm.Prompts()
	last := prompts[len(prompts)-1]
	if !strings.Contains(last, text) || !strings.Contains(last, "What color is the sky?") {
		t.Errorf("prompt should contain the chunk and the query:\n%s", last)
	}
}

func TestConcurrentUploadsKeepOneDocumentSet(t *testing.T) {
	f := newFixture(t, nil, RetrieverOptions{TopK: 5})
	ctx := context.Background()

	uploads := func(prefix string) []fs.Upload {
		var ups []fs.Upload
		for i := 0; i < 50; i++ {
			ups = append(ups, fs.Upload{
				Name: fmt.Sprintf("%s%02d.txt", prefix, i),
				Body: strings.NewReader(fmt.Sprintf("note %s number %d", prefix, i)),
			})
		}
		return ups
	}

	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		for _, prefix := range []string{"a", "b"} {
			wg.Add(1)
			go func(prefix string) {
				defer wg.Done()
				if res := f.qa.Upload(ctx, uploads(prefix)); res.Status != domain.StatusSuccess {
					t.Errorf("upload %s failed: %+v", prefix, res)
				}
			}(prefix)
		}
		wg.Wait()

		entries, err := os.ReadDir(f.docsDir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 50 {
			t.Fatalf("round %d: expected 50 documents, got %d", round, len(entries))
		}
		prefix := entries[0].Name()[:1]
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), prefix) {
				t.Fatalf("round %d: documents dir mixes uploads: %s and %s", round, entries[0].Name(), e.Name())
			}
		}

		stats, ok := f.qa.Stats()
		if !ok || stats.Documents != 50 {
			t.Fatalf("round %d: unexpected stats %+v", round, stats)
		}
		res, err := f.retriever.Retrieve(ctx, "note")
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range res.Chunks {
			if !strings.HasPrefix(filepath.Base(c.Chunk.Source), prefix) {
				t.Errorf("round %d: index holds %s but documents dir holds %s*", round, c.Chunk.Source, prefix)
			}
		}
	}
}

// gatedWalker holds the first Walk after listing the directory until
// release is closed.
type gatedWalker struct {
	inner   port.FileWalker
	calls   atomic.Int64
	entered chan struct{}
	release chan struct{}
}

func (w *gatedWalker) Walk(root string) ([]port.FileInfo, error) {
	files, err := w.inner.Walk(root)
	if w.calls.Add(1) == 1 {
		close(w.entered)
		<-w.release
	}
	return files, err
}

func TestBuildFromDirNeverPublishesOlderListing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "old.txt"), []byte("old document"), 0644); err != nil {
		t.Fatal(err)
	}

	ch, err := chunker.NewWindowChunker(1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	log := logging.Discard()
	walker := &gatedWalker{
		inner:   fs.NewWalker(nil, nil),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := NewRetriever(extract.New(), ch, embedding.NewMockEmbedder(64), NewDocumentLoader(walker, log), RetrieverOptions{}, log)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.BuildFromDir(ctx, dir, nil)
	}()
	<-walker.entered

	// the document set changes while the first build is still loading
	if err := os.Remove(filepath.Join(dir, "old.txt")); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"new1.txt", "new2.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("new document "+name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	go func() {
		defer wg.Done()
		if _, err := r.BuildFromDir(ctx, dir, nil); err != nil {
			t.Errorf("second build failed: %v", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(walker.release)
	wg.Wait()

	stats, ok := r.Stats()
	if !ok || stats.Documents != 2 {
		t.Errorf("expected the newer listing with 2 documents to be active, got %+v (ok=%v)", stats, ok)
	}
}
