package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/config"
	"github.com/Be1newinner/asaan-hai-coding/internal/content"
	"github.com/Be1newinner/asaan-hai-coding/internal/llm"
	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "draft":
		runDraft(os.Args[2:])
	case "prompt":
		runPrompt(os.Args[2:])
	default:
		usage()
	}
}

type target struct {
	course uuid.UUID
	lesson uuid.UUID
}

func parseTarget(fs *flag.FlagSet, args []string) target {
	course := fs.String("course", "", "course id")
	lesson := fs.String("lesson", "", "lesson id")
	_ = fs.Parse(args)

	var (
		t   target
		err error
	)
	if t.course, err = uuid.Parse(*course); err != nil {
		fail("invalid -course: %v", err)
	}
	if t.lesson, err = uuid.Parse(*lesson); err != nil {
		fail("invalid -lesson: %v", err)
	}
	return t
}

func openStore(cfg config.Config) *content.Store {
	db, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		fail("open db: %v", err)
	}
	return content.NewStore(db, media.NewService(db, nil).Repository())
}

// runDraft generates one lesson body and prints the result as JSON.
func runDraft(args []string) {
	fs := flag.NewFlagSet("draft", flag.ExitOnError)
	persist := fs.Bool("persist", false, "store the draft as the lesson content")
	model := fs.String("model", "", "model override")
	timeout := fs.Duration("timeout", 3*time.Minute, "request timeout")
	t := parseTarget(fs, args)

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	store := openStore(cfg)
	drafter := llm.NewDrafter(store.Courses, store.Lessons, llm.NewGenerator(cfg.LLM, nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := drafter.Draft(ctx, llm.DraftRequest{
		CourseID: t.course,
		LessonID: t.lesson,
		Persist:  *persist,
		Override: llm.Key{Model: *model},
	})
	if err != nil {
		fail("draft: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}

// runPrompt prints the prompt that would be sent, without calling a model.
func runPrompt(args []string) {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	t := parseTarget(fs, args)

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	store := openStore(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	course, err := store.Courses.Get(ctx, t.course, "sections")
	if err != nil {
		fail("load course: %v", err)
	}
	if course == nil {
		fail("course %s not found", t.course)
	}
	prompt, err := llm.CoursePrompt(course, t.lesson, cfg.LLM.MaxTokens)
	if err != nil {
		fail("build prompt: %v", err)
	}
	fmt.Println(prompt)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s draft|prompt -course <id> -lesson <id> [-persist] [-model name]\n", os.Args[0])
	os.Exit(1)
}
