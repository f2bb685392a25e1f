// Copyright 2025 walteh LLC
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

package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/walteh/webmigrate/pkg/log"
	"gitlab.com/tozd/go/errors"
)

// maxErrorLines bounds the console error listing; the JSON report always
// carries the full set.
const maxErrorLines = 20

// reportFS is the write surface report persistence needs.
type reportFS interface {
	WriteFileAtomic(path string, content []byte) error
}

// 💾 WriteReport persists the run report as indented JSON.
func WriteReport(fs reportFS, path string, rep *RunReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return errors.Errorf("marshaling run report: %w", err)
	}
	if err := fs.WriteFileAtomic(path, data); err != nil {
		return errors.Errorf("writing run report: %w", err)
	}
	return nil
}

// 📊 Summarize prints the run's aggregate numbers and a bounded error
// listing to the console.
func Summarize(console *log.Logger, rep *RunReport) {
	if console == nil {
		return
	}

	var matched, fulfilled, rejected, cached int
	var lines []string
	for _, p := range rep.Pages {
		matched += p.Matched
		fulfilled += p.Fulfilled
		rejected += p.Rejected
		cached += p.Cached

		if p.Err != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", p.Page, p.Err))
		}
		for _, out := range p.Outcomes {
			if !out.Fulfilled {
				lines = append(lines, fmt.Sprintf("%s: %s", out.Source, out.Reason))
			}
		}
		if p.Upload != nil {
			for _, ue := range p.Upload.Errors {
				lines = append(lines, fmt.Sprintf("%s (%s): %s", ue.Path, ue.Type, ue.Message))
			}
		}
	}

	console.Infof("%d pages • %d assets matched • %d fulfilled (%d cached) • %d rejected",
		len(rep.Pages), matched, fulfilled, cached, rejected)

	if len(lines) == 0 {
		console.Success(fmt.Sprintf("migration complete in %s", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)))
		return
	}

	shown := lines
	omitted := 0
	if len(shown) > maxErrorLines {
		omitted = len(shown) - maxErrorLines
		shown = shown[:maxErrorLines]
	}
	for _, line := range shown {
		console.Error(line)
	}
	if omitted > 0 {
		console.Warningf("… and %d more (see the run report for the full list)", omitted)
	}
}
