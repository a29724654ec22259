// Command popgen ingests variant stores and answers population-genetic
// queries against them.
package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/raulk/go-watchdog"
	log "github.com/sirupsen/logrus"

	"github.com/carbocation/popgen"
	"github.com/carbocation/popgen/artifact"
	"github.com/carbocation/popgen/config"
	"github.com/carbocation/popgen/ingest"
	"github.com/carbocation/popgen/stats"
	"github.com/carbocation/popgen/store"
)

type QueryCmd struct {
	Chromosome string   `arg:"-c,required" help:"chromosome, e.g. 22"`
	Start      *int64   `help:"first position of the range"`
	Stop       *int64   `help:"last position of the range"`
	Gene       string   `arg:"-g" help:"gene symbol"`
	Marker     string   `arg:"-m" help:"marker rsid"`
	Stat       []string `arg:"-s,required" help:"statistics: seq_div, watt_thet, taj_d, hap_div, fst"`
	Pop        []string `arg:"-p,required" help:"super-populations: AFR, AMR, EAS, EUR, SAS"`
	ID         string   `help:"save the working set under this id for later windowing"`
	Names      bool     `help:"print display names instead of codes"`
}

type WindowCmd struct {
	ID   string `arg:"required" help:"id the query was saved under"`
	Stat string `arg:"-s,required" help:"seq_div, watt_thet, taj_d or fst"`
	Pop1 string `arg:"required" help:"population"`
	Pop2 string `help:"second population; required for fst"`
	Size int64  `help:"window size in bp (default from config)"`
	Step int64  `help:"window step in bp (default from config)"`
}

type IngestVCFCmd struct {
	Panel string   `arg:"required" help:"sample panel TSV (sample, pop, super_pop, gender)"`
	Out   string   `arg:"-o,required" help:"directory for the new store"`
	Name  string   `help:"store name recorded in its metadata"`
	Chrom []string `help:"only ingest these chromosomes"`
	Input string   `arg:"positional,required" help:"VCF file (.vcf, .vcf.gz or .vcf.zst)"`
}

type IngestBGENCmd struct {
	Panel     string   `arg:"required" help:"sample panel TSV (sample, pop, super_pop, gender)"`
	Out       string   `arg:"-o,required" help:"directory for the new store"`
	BGI       string   `help:"optional .bgi index of the input"`
	Phased    string   `help:"optional BGEN file of phased haplotypes"`
	Threshold float64  `help:"minimum probability for a hard call" default:"0.9"`
	Name      string   `help:"store name recorded in its metadata"`
	Chrom     []string `help:"only ingest these chromosomes"`
	Input     string   `arg:"positional,required" help:"BGEN v1.2 file"`
}

type InfoCmd struct{}

type args struct {
	Config    string `help:"TOML configuration file"`
	Store     string `help:"store directory or gs:// URI (overrides store_path)"`
	Artifacts string `help:"artifact directory (overrides artifact_dir)"`
	LogLevel  string `help:"log level (overrides log_level)"`

	Query      *QueryCmd      `arg:"subcommand:query" help:"compute whole-range statistics"`
	Window     *WindowCmd     `arg:"subcommand:window" help:"compute a windowed series from a saved query"`
	IngestVCF  *IngestVCFCmd  `arg:"subcommand:ingest-vcf" help:"build a store from a VCF"`
	IngestBGEN *IngestBGENCmd `arg:"subcommand:ingest-bgen" help:"build a store from BGEN files"`
	Info       *InfoCmd       `arg:"subcommand:info" help:"describe a store"`
}

func (args) Description() string {
	return "popgen computes population-genetic statistics over a variant store"
}

func main() {
	var cli args
	p := arg.MustParse(&cli)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	cfg := config.Default()
	if cli.Config != "" {
		var err error
		if cfg, err = config.Load(cli.Config); err != nil {
			log.Fatalln(err)
		}
	}
	if cli.Store != "" {
		cfg.StorePath = cli.Store
	}
	if cli.Artifacts != "" {
		cfg.ArtifactDir = cli.Artifacts
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalln(err)
	}
	log.SetLevel(cfg.Level())

	if cfg.MemoryLimit > 0 {
		err, stopFn := watchdog.HeapDriven(cfg.MemoryLimit, 40, watchdog.NewAdaptivePolicy(0.5))
		if err != nil {
			log.Fatalln(err)
		}
		defer stopFn()
		log.WithField("limit", humanize.IBytes(cfg.MemoryLimit)).Debug("heap watchdog armed")
	}

	var err error
	switch {
	case cli.Query != nil:
		err = runQuery(cfg, cli.Query)
	case cli.Window != nil:
		err = runWindow(cfg, cli.Window)
	case cli.IngestVCF != nil:
		err = runIngestVCF(cfg, cli.IngestVCF)
	case cli.IngestBGEN != nil:
		err = runIngestBGEN(cfg, cli.IngestBGEN)
	case cli.Info != nil:
		err = runInfo(cfg)
	}

	if err != nil {
		if msg := popgen.UserMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
			os.Exit(1)
		}
		log.Fatalln(err)
	}
}

func openStore(cfg config.Config) (*store.Store, error) {
	return store.Open(cfg.StorePath, store.WithCacheDir(cfg.CacheDir))
}

func runQuery(cfg config.Config, cmd *QueryCmd) error {
	q := popgen.Query{
		Chromosome:  cmd.Chromosome,
		Start:       cmd.Start,
		Stop:        cmd.Stop,
		Gene:        cmd.Gene,
		Marker:      cmd.Marker,
		Statistics:  cmd.Stat,
		Populations: cmd.Pop,
	}
	if err := popgen.Validate(q, cfg); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := popgen.Compute(st, q, popgen.WithMaxAllele(cfg.MaxAllele))
	if err != nil {
		return err
	}

	if cmd.ID != "" {
		if err := (artifact.Dir{Root: cfg.ArtifactDir}).Save(cmd.ID, q, res); err != nil {
			return err
		}
	}

	records := res.Summary.Records()
	if cmd.Names {
		records[0] = displayHeader(records[0])
		for _, rec := range records[1:] {
			if name, ok := stats.PopulationNames[rec[0]]; ok {
				rec[0] = name
			}
		}
	}
	if err := writeTSV(records); err != nil {
		return err
	}

	if res.Fst != nil {
		fmt.Println()
		return writeTSV(res.Fst.Records())
	}
	return nil
}

func displayHeader(header []string) []string {
	out := make([]string, len(header))
	copy(out, header)
	for i, code := range out[1:] {
		if name, ok := stats.StatisticNames[code]; ok {
			out[i+1] = name
		}
	}
	return out
}

func runWindow(cfg config.Config, cmd *WindowCmd) error {
	size, step := cmd.Size, cmd.Step
	if size == 0 {
		size = cfg.WindowSize
	}
	if step == 0 {
		step = cfg.WindowStep
	}

	series, err := (artifact.Dir{Root: cfg.ArtifactDir}).Window(cmd.ID, size, step, cmd.Stat, cmd.Pop1, cmd.Pop2)
	if err != nil {
		return err
	}

	records := [][]string{{"chrom_pos", "value", "population"}}
	for _, pt := range series {
		records = append(records, []string{
			strconv.FormatFloat(pt.Position, 'f', -1, 64),
			strconv.FormatFloat(pt.Value, 'g', -1, 64),
			pt.Population,
		})
	}
	return writeTSV(records)
}

func runIngestVCF(cfg config.Config, cmd *IngestVCFCmd) error {
	panel, err := ingest.ReadPanel(cmd.Panel)
	if err != nil {
		return err
	}
	_, err = ingest.FromVCF(cmd.Out, cmd.Input, panel, ingest.Options{
		Name:        cmd.Name,
		ChunkSize:   cfg.ChunkSize,
		Chromosomes: cmd.Chrom,
	})
	return err
}

func runIngestBGEN(cfg config.Config, cmd *IngestBGENCmd) error {
	panel, err := ingest.ReadPanel(cmd.Panel)
	if err != nil {
		return err
	}
	_, err = ingest.FromBGEN(cmd.Out, ingest.BGENInput{
		Path:       cmd.Input,
		IndexPath:  cmd.BGI,
		PhasedPath: cmd.Phased,
	}, panel, ingest.Options{
		Name:        cmd.Name,
		ChunkSize:   cfg.ChunkSize,
		Threshold:   cmd.Threshold,
		Chromosomes: cmd.Chrom,
	})
	return err
}

func runInfo(cfg config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	samples, err := st.Samples()
	if err != nil {
		return err
	}
	perPop := make(map[string]int)
	for _, s := range samples {
		perPop[s.SuperPopulation]++
	}
	pops := make([]string, 0, len(perPop))
	for p := range perPop {
		pops = append(pops, p)
	}
	sort.Strings(pops)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	fmt.Fprintf(w, "store\t%s\n", st.Path)
	fmt.Fprintf(w, "name\t%s\n", st.Metadata.Name)
	fmt.Fprintf(w, "source\t%s\n", st.Metadata.Source)
	fmt.Fprintf(w, "created\t%s\n", st.Metadata.CreatedAt)
	fmt.Fprintf(w, "samples\t%s\n", humanize.Comma(int64(len(samples))))
	for _, p := range pops {
		fmt.Fprintf(w, "samples_%s\t%d\n", p, perPop[p])
	}
	for _, name := range st.Chromosomes() {
		c, err := st.Chromosome(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "chr%s\t%s variants\t%s phased\n", name, humanize.Comma(int64(c.NVariants)), humanize.Comma(int64(c.NPhased)))
	}
	return nil
}

func writeTSV(records [][]string) error {
	w := csv.NewWriter(os.Stdout)
	w.Comma = '\t'
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return nil
}
