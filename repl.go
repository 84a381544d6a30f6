// Copyright 2025 The IQC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caodac/iqc/annotation"
	"github.com/caodac/iqc/apiserver"
	"github.com/caodac/iqc/clearance"
	"github.com/caodac/iqc/cnf"
	"github.com/caodac/iqc/dataset"
	"github.com/caodac/iqc/estimator"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
)

var errExitShell = errors.New("exit")

func ensureConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(homeDir, ".config", "iqc")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}

// curatorShell keeps state of an interactive review session.
// A dataset must be selected (see the `use` command) before
// its samples can be listed and annotated.
type curatorShell struct {
	datasets    *dataset.Service
	annotations annotation.Store
	est         *estimator.Estimator
	calc        clearance.Calculator
	curator     string
	topN        int
	out         io.Writer

	current   string
	estimates []estimator.SampleEstimate
}

func (sh *curatorShell) printHelp() {
	fmt.Fprintln(sh.out, "Commands:")
	fmt.Fprintln(sh.out, "  datasets                      - list archived datasets")
	fmt.Fprintln(sh.out, "  use <dataset>                 - select and estimate a dataset")
	fmt.Fprintln(sh.out, "  samples                       - list samples with their best fits")
	fmt.Fprintln(sh.out, "  show <sample>                 - show ranked fits of a sample")
	fmt.Fprintln(sh.out, "  approve <result id> [comment] - mark a fit as the one to save")
	fmt.Fprintln(sh.out, "  reject <result id> [comment]  - mark a fit as rejected")
	fmt.Fprintln(sh.out, "  annotations                   - list annotations of the dataset")
	fmt.Fprintln(sh.out, "  set conc <pmol/mL>            - set CYP concentration")
	fmt.Fprintln(sh.out, "  set unit <unit>               - set CLint unit (mL/pmol/min, mL/nmol/hr)")
	fmt.Fprintln(sh.out, "  set transform <ratio|log>     - set CLint transform")
	fmt.Fprintln(sh.out, "  set curator <name>            - set curator name")
	fmt.Fprintln(sh.out, "  set top <n>                   - number of fits shown by `show` (0 = all)")
	fmt.Fprintln(sh.out, "  setup                         - view current settings")
	fmt.Fprintln(sh.out, "  exit                          - exit the shell")
}

func (sh *curatorShell) requireDataset() error {
	if sh.current == "" {
		return fmt.Errorf("no dataset selected, please use `use <dataset>`")
	}
	return nil
}

func (sh *curatorShell) findSample(name string) (estimator.SampleEstimate, bool) {
	for _, se := range sh.estimates {
		if se.Sample.Name == name {
			return se, true
		}
	}
	return estimator.SampleEstimate{}, false
}

func (sh *curatorShell) findResult(resultID string) (*estimator.Result, error) {
	sampleName, _, err := estimator.ParseID(resultID)
	if err != nil {
		return nil, err
	}
	se, ok := sh.findSample(sampleName)
	if !ok {
		return nil, fmt.Errorf("sample %s not found in %s", sampleName, sh.current)
	}
	for _, res := range se.Results {
		if res.ID() == resultID {
			return res, nil
		}
	}
	return nil, fmt.Errorf("result %s not found", resultID)
}

func (sh *curatorShell) latestAnnotations(ctx context.Context) (map[string]annotation.Annotation, error) {
	anns, err := sh.annotations.ListDataset(ctx, sh.current)
	if err != nil {
		return nil, err
	}
	ans := make(map[string]annotation.Annotation, len(anns))
	for _, ann := range anns {
		ans[ann.SampleName()] = ann
	}
	return ans, nil
}

func (sh *curatorShell) fmtAnnotation(ann annotation.Annotation) string {
	if ann.Save {
		return color.New(color.FgGreen).Sprintf("approved %s (%s)", ann.ResultID, ann.Curator)
	}
	return color.New(color.FgRed).Sprintf("rejected %s (%s)", ann.ResultID, ann.Curator)
}

func (sh *curatorShell) cmdDatasets(ctx context.Context) error {
	entries, err := sh.datasets.List(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Fprintf(
			sh.out, "%s\t%d bytes\t%s\t%s\n",
			entry.Name, entry.Size, entry.FingerprintHex(), entry.Modified.Format("2006-01-02 15:04"))
	}
	return nil
}

func (sh *curatorShell) cmdUse(ctx context.Context, name string) error {
	estimates, err := sh.datasets.Estimates(ctx, name, sh.est, sh.calc)
	if err != nil {
		return err
	}
	sh.current = name
	sh.estimates = estimates
	fmt.Fprintf(sh.out, "dataset %s selected, %d samples\n", name, len(estimates))
	return nil
}

func (sh *curatorShell) cmdSamples(ctx context.Context) error {
	if err := sh.requireDataset(); err != nil {
		return err
	}
	anns, err := sh.latestAnnotations(ctx)
	if err != nil {
		return err
	}
	titleColor := color.New(color.FgHiMagenta).SprintFunc()
	for _, se := range sh.estimates {
		fmt.Fprintf(sh.out, "%s\t", titleColor(se.Sample.Name))
		if best := se.Best(); best != nil {
			fmt.Fprintf(
				sh.out, "best: %s score=%s CLint=%s t1/2=%s",
				best.ID(), fmtValue(best.Score), fmtValue(best.CLint), fmtValue(best.HalfLife))

		} else if se.Err != nil {
			color.New(errColor).Fprintf(sh.out, "%s", se.Err)
		}
		if ann, ok := anns[se.Sample.Name]; ok {
			fmt.Fprintf(sh.out, "\t%s", sh.fmtAnnotation(ann))
		}
		fmt.Fprintln(sh.out)
	}
	return nil
}

func (sh *curatorShell) cmdShow(ctx context.Context, name string) error {
	if err := sh.requireDataset(); err != nil {
		return err
	}
	se, ok := sh.findSample(name)
	if !ok {
		return fmt.Errorf("sample %s not found in %s", name, sh.current)
	}
	writeSampleText(sh.out, se, sh.topN, sh.calc.Unit)
	anns, err := sh.latestAnnotations(ctx)
	if err != nil {
		return err
	}
	if ann, ok := anns[name]; ok {
		fmt.Fprintf(sh.out, "  %s\n", sh.fmtAnnotation(ann))
	}
	return nil
}

func (sh *curatorShell) cmdAnnotate(ctx context.Context, resultID string, save bool, comments string) error {
	if err := sh.requireDataset(); err != nil {
		return err
	}
	if _, err := sh.findResult(resultID); err != nil {
		return err
	}
	ann, err := sh.annotations.Add(ctx, annotation.Annotation{
		Dataset:  sh.current,
		ResultID: resultID,
		Save:     save,
		Curator:  sh.curator,
		Comments: comments,
	})
	if err != nil {
		return err
	}
	log.Debug().
		Int64("id", ann.ID).
		Str("dataset", ann.Dataset).
		Str("result", ann.ResultID).
		Bool("save", ann.Save).
		Msg("stored annotation")
	fmt.Fprintf(sh.out, "annotation %d stored: %s\n", ann.ID, sh.fmtAnnotation(ann))
	return nil
}

func (sh *curatorShell) cmdAnnotations(ctx context.Context) error {
	if err := sh.requireDataset(); err != nil {
		return err
	}
	anns, err := sh.annotations.ListDataset(ctx, sh.current)
	if err != nil {
		return err
	}
	for _, ann := range anns {
		fmt.Fprintf(
			sh.out, "%d\t%s\t%s\t%s\n",
			ann.ID, ann.Created.Format("2006-01-02 15:04"), sh.fmtAnnotation(ann), ann.Comments)
	}
	return nil
}

func (sh *curatorShell) updateCalculator(calc clearance.Calculator) error {
	if err := calc.Validate(); err != nil {
		return err
	}
	sh.calc = calc
	for _, se := range sh.estimates {
		calc.Apply(se.Results)
	}
	return nil
}

func (sh *curatorShell) cmdSet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <conc|unit|transform|curator|top> <value>")
	}
	calc := sh.calc
	switch args[0] {
	case "conc":
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid concentration: %w", err)
		}
		calc.Conc = v
		return sh.updateCalculator(calc)
	case "unit":
		calc.Unit = clearance.Unit(args[1])
		return sh.updateCalculator(calc)
	case "transform":
		tr, err := clearance.TransformByName(args[1])
		if err != nil {
			return err
		}
		calc.Transform = tr
		return sh.updateCalculator(calc)
	case "curator":
		sh.curator = args[1]
	case "top":
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid number of results: %s", args[1])
		}
		sh.topN = v
	default:
		return fmt.Errorf("unknown 'set' command")
	}
	return nil
}

func (sh *curatorShell) cmdSetup() {
	titleColor := color.New(color.FgHiMagenta).SprintFunc()
	fmt.Fprintf(sh.out, "%s:\t\t%s\n", titleColor("Dataset"), sh.current)
	fmt.Fprintf(sh.out, "%s:\t\t%s\n", titleColor("Curator"), sh.curator)
	fmt.Fprintf(sh.out, "%s:\t%.2f pmol/mL\n", titleColor("CYP conc."), sh.calc.Conc)
	fmt.Fprintf(sh.out, "%s:\t%s\n", titleColor("CLint unit"), sh.calc.Unit)
	fmt.Fprintf(sh.out, "%s:\t%s\n", titleColor("Transform"), sh.calc.Transform.Name())
	fmt.Fprintf(sh.out, "%s:\t%s\n", titleColor("Estimator"), sh.est.Settings)
}

// exec runs a single shell command. The errExitShell error means
// the session should end.
func (sh *curatorShell) exec(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "exit", "quit":
		return errExitShell
	case "help":
		sh.printHelp()
	case "datasets":
		return sh.cmdDatasets(ctx)
	case "use":
		if len(fields) != 2 {
			return fmt.Errorf("usage: use <dataset>")
		}
		return sh.cmdUse(ctx, fields[1])
	case "samples":
		return sh.cmdSamples(ctx)
	case "show":
		if len(fields) < 2 {
			return fmt.Errorf("usage: show <sample>")
		}
		return sh.cmdShow(ctx, strings.Join(fields[1:], " "))
	case "approve", "reject":
		if len(fields) < 2 {
			return fmt.Errorf("usage: %s <result id> [comment]", fields[0])
		}
		return sh.cmdAnnotate(ctx, fields[1], fields[0] == "approve", strings.Join(fields[2:], " "))
	case "annotations":
		return sh.cmdAnnotations(ctx)
	case "set":
		return sh.cmdSet(fields[1:])
	case "setup":
		sh.cmdSetup()
	default:
		return fmt.Errorf("unknown command %s, type `help` for the list of commands", fields[0])
	}
	return nil
}

func runActionREPL(conf *cnf.Conf, curator string) {
	ctx := context.Background()
	calc, err := conf.Clearance.Calculator()
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorInvalidConfig)
	}
	datasets, closeDatasets, err := apiserver.OpenDatasets(ctx, conf)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorREPLFailed)
	}
	defer closeDatasets()
	annotations, err := annotation.Open(ctx, conf.Annotations)
	if err != nil {
		color.New(errColor).Fprintln(os.Stderr, err)
		os.Exit(exitErrorREPLFailed)
	}
	defer annotations.Close()

	shell := &curatorShell{
		datasets:    datasets,
		annotations: annotations,
		est:         estimator.New(conf.Estimator.Settings()),
		calc:        calc,
		curator:     curator,
		topN:        5,
		out:         os.Stdout,
	}

	fmt.Println("IQC curator shell")
	shell.printHelp()
	fmt.Println()

	var historyFile string
	historyDir, err := ensureConfigDir()
	if err != nil {
		log.Error().Err(err).Msg("failed to determine user config directory - falling back to session-local history")

	} else {
		historyFile = filepath.Join(historyDir, "iqc-history.txt")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      color.New(color.FgHiGreen).Sprintf("/iqc> "),
		HistoryFile: historyFile,
	})
	if err != nil {
		color.New(errColor).Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(exitErrorREPLFailed)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nIQC out!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if err := shell.exec(ctx, strings.TrimSpace(line)); err != nil {
			if errors.Is(err, errExitShell) {
				fmt.Println("Goodbye!")
				break
			}
			color.New(errColor).Fprintln(os.Stderr, err)
		}
	}
}
