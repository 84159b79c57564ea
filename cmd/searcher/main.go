// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/core"
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	engine, err := semindex.Open("./semindex-data")
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ctx := context.Background()
	var hits []core.Hit
	if len(os.Args) > 1 {
		hits, err = engine.Search(ctx, strings.Join(os.Args[1:], " "), 5)
	} else {
		hits, err = engine.Search(ctx, "lantern", 5)
	}
	if err != nil {
		panic(err)
	}

	fmt.Printf("Found %d hits\n", len(hits))
	for _, hit := range hits {
		fmt.Printf("%d: '%s' (%s#%d)[%0.3f]\n", hit.Rank, hit.Summary, hit.DocID, hit.ChunkID, hit.Score)
	}
}
