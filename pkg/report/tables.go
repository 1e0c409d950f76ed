// Copyright 2025 seqops LLC
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

package report

import (
	"io"

	"github.com/pterm/pterm"
	"github.com/seqops/dropsync/pkg/executor"
	"github.com/seqops/dropsync/pkg/plan"
	"gitlab.com/tozd/go/errors"
)

// 📋 PlanTable renders the decided action plan for every discovered file
func PlanTable(w io.Writer, files []*plan.FilePlan, unmatched []string) error {
	data := pterm.TableData{
		{"SOURCE", "TARGET", "INTEGRITY", "MATCH", "RECORD", "ACTION", "REASON"},
	}

	for _, fp := range files {
		data = append(data, []string{
			fp.Candidate.RelPath,
			fp.Target.Path,
			fp.Integrity.Result.String(),
			matchCell(fp),
			presenceCell(fp.Presence),
			actionCell(fp.Plan),
			string(firstPlanReason(fp.Plan)),
		})
	}

	for _, rel := range unmatched {
		data = append(data, []string{rel, "", "", "", "", "unmatched", "no_pattern_match"})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render(); err != nil {
		return errors.Errorf("rendering plan table: %w", err)
	}
	return nil
}

// 📋 SummaryTable renders what actually happened to every file
func SummaryTable(w io.Writer, results []executor.Result) error {
	data := pterm.TableData{
		{"SOURCE", "TARGET", "COPIED", "VERIFIED", "SIDECAR", "WRITE-BACK", "ARCHIVED", "REASON"},
	}

	for _, res := range results {
		data = append(data, []string{
			res.RelPath,
			res.TargetPath,
			tick(res.Copied),
			tick(res.Verified),
			string(res.Sidecar),
			res.WroteBack.String(),
			tick(res.Archived),
			string(res.Reason),
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(data).Render(); err != nil {
		return errors.Errorf("rendering summary table: %w", err)
	}
	return nil
}

// 🔀 Outcome converts an execution result to its console line
func Outcome(res executor.Result) FileOutcome {
	action := "copy"
	switch {
	case res.Skipped:
		action = "skip"
	case res.WroteBack == plan.WriteBackUpdate:
		action = "copy+update"
	case res.WroteBack == plan.WriteBackCreate:
		action = "copy+create"
	}

	return FileOutcome{
		Source:   res.RelPath,
		Target:   res.TargetPath,
		Action:   action,
		Reason:   string(res.Reason),
		Failed:   res.Err != nil,
		Skipped:  res.Skipped,
		Archived: res.Archived,
	}
}

func matchCell(fp *plan.FilePlan) string {
	if !fp.Metadata.Found {
		if fp.Metadata.Key == "" {
			return ""
		}
		return "miss"
	}
	return fp.Metadata.Source
}

func presenceCell(p plan.Presence) string {
	switch {
	case !p.Checked:
		return ""
	case p.Err != nil:
		return "error"
	case p.Found && p.HasID:
		return "exists"
	case p.Found:
		return "exists (no id)"
	default:
		return "new"
	}
}

func actionCell(ap plan.ActionPlan) string {
	if !ap.Copy.Execute {
		return "skip"
	}
	action := "copy"
	switch ap.WriteBack.Mode {
	case plan.WriteBackUpdate:
		action += "+update"
	case plan.WriteBackCreate:
		action += "+create"
	}
	if ap.Archive.Execute {
		action += "+archive"
	}
	return action
}

func firstPlanReason(ap plan.ActionPlan) plan.Reason {
	if ap.Copy.Reason != plan.ReasonNone {
		return ap.Copy.Reason
	}
	return ap.WriteBack.Reason
}

func tick(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
