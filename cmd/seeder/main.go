// Command seeder indexes sample documents, or writes them out as JSON
// records for the watcher and the index command.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/core"
)

var sentences = []string{
	"The quick brown fox jumps over the lazy dog.",
	"The city skyline glowed under the starry night sky.",
	"A bright comet streaked across the horizon at midnight.",
	"Beneath the waves, coral gardens shimmered in colors unseen.",
	"Her heart raced as she stepped onto the stage for the first time.",
	"The old clock chimed thirteen times in an abandoned town.",
	"The desert dunes shifted silently under a pale moon.",
	"A silver fox slipped past the fences into the twilight.",
	"He built a wooden bridge across the swift river.",
	"They tasted coffee brewed fresh in the quiet dawn.",
	"He felt the rough bark of the tree against his palm.",
	"They watched a parade of balloons float over the town square.",
	"The river's current carried leaves downstream like paper boats.",
	"A rustling in the bushes signaled the arrival of deer.",
	"She tasted honey straight from a beehive's sweet core.",
	"He watched the sunrise paint the horizon pink and orange.",
	"They tasted tea brewed from leaves harvested yesterday.",
	"The wind carried the scent of rain across the plains.",
	"A stray cat curled up beside the fire, purring softly.",
	"She hummed a lullaby as she tucked her child in bed.",
	"He painted a portrait of his grandmother with care.",
	"They listened to waves crash against the rocky shore.",
	"The old house creaked as the wind blew through its windows.",
	"A small frog hopped onto a lily pad in the pond.",
	"She collected leaves of different colors for her art project.",
	"He measured how many steps it took to reach the top of the hill.",
	"They watched birds build nests in the tall trees.",
	"The wind whistled through the reeds by the riverbank.",
	"A sudden flash of lightning illuminated the dark night.",
	"She collected seashells from the sandy shore.",
	"He carved initials into a wooden plaque for his home.",
	"They watched the sunrise slowly paint the world with gold.",
	"The old bridge creaked as people crossed it at dawn.",
	"A gentle wind lifted the lantern, making its flame dance.",
	"Seventeen geese unanimously voted to relocate the pond.",
	"Gravity works part-time on weekends.",
	"The cat debugged the production database at 3 AM.",
	"Time zones are a social construct that clocks reluctantly enforce.",
	"The firewall gained sentience and immediately requested vacation days.",
	"Packets take the scenic route through deprecated protocols.",
	"The edge case became the primary use case overnight.",
	"The garbage collector went on strike.",
	"Binary trees started growing actual leaves in autumn.",
	"The mutex died of loneliness.",
	"Passwords became self-aware and changed themselves.",
	"The singleton pattern admitted it had commitment issues.",
	"Kubernetes pods formed their own government.",
	"The infinite loop found its exit condition in philosophy.",
	"Microservices consolidated into a monolith out of nostalgia.",
	"The hash collision was actually a family reunion.",
	"Semantic versioning lost all meaning at version 2.0.0.",
	"The build pipeline became self-referential.",
	"Continuous integration became sporadically continuous.",
	"The thread pool went for a swim.",
	"Dependency injection became codependent.",
	"The type system developed trust issues.",
	"Garbage collection found treasure instead.",
	"The state machine achieved enlightenment and became stateless.",
	"Polymorphism couldn't decide what it wanted to be.",
	"The proxy stood in for itself.",
	"Inheritance skipped a generation.",
	"The namespace collision was intentional.",
	"Assertions asserted themselves too strongly.",
	"The watchdog timer fell asleep.",
	"The kernel panicked about existential questions.",
	"The network stack unstacked itself.",}

var (
	seedFileName = flag.String("src", "", "file of seed sentences, one per line")
	indexDir     = flag.String("dir", "./semindex-data", "index directory")
	outDir       = flag.String("out", "", "write JSON records here instead of indexing")
	perDoc       = flag.Int("per-doc", 5, "sentences per document")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// documents groups source lines into documents of size sentences each.
func documents(source iter.Seq[string], size int) iter.Seq[*core.Document] {
	return func(yield func(*core.Document) bool) {
		n := 0
		batch := make([]string, 0, size)
		emit := func() bool {
			n++
			doc := &core.Document{
				DocID:     fmt.Sprintf("seed-%04d", n),
				FileType:  "txt",
				FilePath:  fmt.Sprintf("seed/%04d.txt", n),
				Sentences: batch,
			}
			batch = make([]string, 0, size)
			return yield(doc)
		}
		for line := range source {
			if line == "" {
				continue
			}
			batch = append(batch, line)
			if len(batch) == size && !emit() {
				return
			}
		}
		if len(batch) > 0 {
			emit()
		}
	}
}

func writeRecords(dir string, docs iter.Seq[*core.Document]) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, doc.DocID+".json"), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	// Determine source of seed data
	var source iter.Seq[string]
	if *seedFileName != "" {
		lines, err := linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
		source = lines
	} else {
		source = linesFromSlice(sentences)
	}
	docs := documents(source, max(*perDoc, 1))

	if *outDir != "" {
		if err := writeRecords(*outDir, docs); err != nil {
			panic(err)
		}
		return
	}

	engine, err := semindex.Open(*indexDir)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	var batch []*core.Document
	for doc := range docs {
		batch = append(batch, doc)
	}
	summary, err := engine.Index(context.Background(), batch...)
	if err != nil {
		panic(err)
	}
	slog.Info("seeded index", "documents", len(batch), "added", summary.Added, "skipped", summary.SkippedDuplicate)
}
