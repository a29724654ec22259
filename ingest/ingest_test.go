package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbocation/popgen"
	"github.com/carbocation/popgen/internal/bgentest"
	"github.com/carbocation/popgen/store"
)

const testPanel = "sample\tpop\tsuper_pop\tgender\textra\n" +
	"S3\tGBR\tEUR\tmale\tx\n" +
	"S1\tYRI\tAFR\tfemale\tx\n" +
	"S9\tCHB\tEAS\tfemale\tx\n" +
	"\n"

func writePanel(t *testing.T) []store.Sample {
	path := filepath.Join(t.TempDir(), "panel.tsv")
	require.NoError(t, os.WriteFile(path, []byte(testPanel), 0644))
	panel, err := ReadPanel(path)
	require.NoError(t, err)
	return panel
}

func allCalls(t *testing.T, st *store.Store, chrom string, kind store.Kind) []int8 {
	g, err := st.Genotypes(chrom, kind)
	require.NoError(t, err)
	var out []int8
	require.NoError(t, g.Each(func(b store.Block) error {
		out = append(out, b.Calls...)
		return nil
	}))
	return out
}

func TestReadPanel(t *testing.T) {
	panel := writePanel(t)
	assert.Equal(t, []store.Sample{
		{ID: "S3", Population: "GBR", SuperPopulation: "EUR", Sex: "male"},
		{ID: "S1", Population: "YRI", SuperPopulation: "AFR", Sex: "female"},
		{ID: "S9", Population: "CHB", SuperPopulation: "EAS", Sex: "female"},
	}, panel)

	_, err := readPanel(strings.NewReader("sample\tpop\tgender\nS1\tYRI\tfemale\n"))
	assert.Error(t, err, "missing super_pop column")

	_, err = readPanel(strings.NewReader("sample\tpop\tsuper_pop\tgender\nS1\tYRI\tAFR\tfemale\nS1\tYRI\tAFR\tfemale\n"))
	assert.Error(t, err, "duplicate sample")

	_, err = readPanel(strings.NewReader("sample\tpop\tsuper_pop\tgender\n"))
	assert.Error(t, err, "no samples")
}

func TestMatchSamples(t *testing.T) {
	panel := writePanel(t)

	samples, cols, err := matchSamples([]string{"S1", "S2", "S3"}, panel)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, cols)
	assert.Equal(t, "S1", samples[0].ID)
	assert.Equal(t, "S3", samples[1].ID)

	_, _, err = matchSamples([]string{"Q1"}, panel)
	assert.Error(t, err)

	cols, err = columnsFor([]string{"S3", "S1"}, samples)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, cols)

	_, err = columnsFor([]string{"S3"}, samples)
	assert.Error(t, err)

	assert.Equal(t, []int8{4, 5, 0, 1}, remap([]int8{0, 1, 2, 3, 4, 5}, []int{2, 0}, nil))
}

const testVCF = "##fileformat=VCFv4.2\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\tS3\n" +
	"chr21\t100\trs1\tA\tG\t.\tPASS\tGENE=G1;AF_AFR=0.5;AF_EUR=0.25;AF_SAS=0.1\tGT\t0|1\t1|1\t0|0\n" +
	"chr21\t200\t.\tC\tT\t.\tPASS\tGENE=G1\tGT\t0/1\t0|0\t1|1\n" +
	"chr21\t200\trs2b\tC\tA\t.\tPASS\t.\tGT\t0|0\t0|0\t0|0\n" +
	"chr22\t50\trs3\tG\tC,T\t.\tPASS\tDAF_EUR=0.3\tGT\t1|1\t0|1\t1|0\n"

func TestFromVCF(t *testing.T) {
	panel := writePanel(t)
	vcfPath := filepath.Join(t.TempDir(), "test.vcf")
	require.NoError(t, os.WriteFile(vcfPath, []byte(testVCF), 0644))

	dir := filepath.Join(t.TempDir(), "store")
	sum, err := FromVCF(dir, vcfPath, panel, Options{Name: "test", ChunkSize: 2})
	require.NoError(t, err)
	assert.Equal(t, Summary{Chromosomes: 2, Variants: 3, Phased: 2, Skipped: 1}, *sum)

	st, err := store.Open(dir)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, []string{"21", "22"}, st.Chromosomes())
	assert.Equal(t, "test", st.Metadata.Name)

	samples, err := st.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "S1", samples[0].ID)
	assert.Equal(t, "AFR", samples[0].SuperPopulation)
	assert.Equal(t, "S3", samples[1].ID)

	pos, err := st.Positions("21", store.Unphased)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, pos)
	pos, err = st.Positions("21", store.Phased)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, pos)

	assert.Equal(t, []int8{0, 1, 0, 0, 0, 1, 1, 1}, allCalls(t, st, "21", store.Unphased))
	assert.Equal(t, []int8{0, 1, 0, 0}, allCalls(t, st, "21", store.Phased))
	assert.Equal(t, []int8{1, 1, 1, 0}, allCalls(t, st, "22", store.Phased))

	table, err := st.Variants("21", popgen.AnnotationFields([]string{"AFR", "EUR"})...)
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rs1", records[0].RSID)
	assert.Equal(t, "G1", records[0].Gene)
	assert.Equal(t, map[string]float64{"AF_AFR": 0.5, "AF_EUR": 0.25}, records[0].Annotations)
	assert.Equal(t, "", records[1].RSID)
	assert.Empty(t, records[1].Annotations)

	table, err = st.Variants("22")
	require.NoError(t, err)
	records, err = table.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "C,T", records[0].Alt)
}

func TestFromVCFChromosomes(t *testing.T) {
	panel := writePanel(t)
	vcfPath := filepath.Join(t.TempDir(), "test.vcf")
	require.NoError(t, os.WriteFile(vcfPath, []byte(testVCF), 0644))

	dir := filepath.Join(t.TempDir(), "store")
	sum, err := FromVCF(dir, vcfPath, panel, Options{Chromosomes: []string{"chr22"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Chromosomes)

	st, err := store.Open(dir)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, []string{"22"}, st.Chromosomes())
}

func bgenPanel() []store.Sample {
	return []store.Sample{
		{ID: "A1", Population: "YRI", SuperPopulation: "AFR", Sex: "female"},
		{ID: "E1", Population: "GBR", SuperPopulation: "EUR", Sex: "male"},
	}
}

func bgenVariants() []bgentest.Variant {
	return []bgentest.Variant{
		{ID: "v1", RSID: "rs1", Chromosome: "01", Position: 10, Alleles: []string{"A", "G"},
			Calls: []int8{0, 1, 1, 1, 0, 0}},
		{ID: "v2", RSID: ".", Chromosome: "01", Position: 20, Alleles: []string{"C", "T"}, Phased: true,
			Calls: []int8{1, 0, -1, -1, 0, 1}},
		{ID: "v3", RSID: "rs3", Chromosome: "02", Position: 5, Alleles: []string{"G", "A"},
			Calls: []int8{0, 0, 0, 1, 1, 1}},
	}
}

func checkBGENStore(t *testing.T, dir string) {
	st, err := store.Open(dir)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, []string{"1", "2"}, st.Chromosomes())

	pos, err := st.Positions("1", store.Unphased)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, pos)
	pos, err = st.Positions("1", store.Phased)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, pos)

	// Sample X is not in the panel.
	assert.Equal(t, []int8{0, 1, 1, 1, 1, 0, -1, -1}, allCalls(t, st, "1", store.Unphased))
	assert.Equal(t, []int8{1, 0, -1, -1}, allCalls(t, st, "1", store.Phased))
	assert.Equal(t, []int8{0, 0, 0, 1}, allCalls(t, st, "2", store.Unphased))

	table, err := st.Variants("1")
	require.NoError(t, err)
	records, err := table.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rs1", records[0].RSID)
	assert.Equal(t, "A", records[0].Ref)
	assert.Equal(t, "G", records[0].Alt)
	assert.Equal(t, "v2", records[1].RSID)
}

func TestFromBGEN(t *testing.T) {
	tmp := t.TempDir()
	bgenPath := filepath.Join(tmp, "test.bgen")
	offsets, sizes := bgentest.Write(t, bgenPath, bgentest.ZLIB, []string{"A1", "E1", "X"}, bgenVariants())

	t.Run("sequential", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "store")
		sum, err := FromBGEN(dir, BGENInput{Path: bgenPath}, bgenPanel(), Options{})
		require.NoError(t, err)
		assert.Equal(t, Summary{Chromosomes: 2, Variants: 3, Phased: 1}, *sum)
		checkBGENStore(t, dir)
	})

	t.Run("indexed", func(t *testing.T) {
		bgiPath := filepath.Join(t.TempDir(), "test.bgen.bgi")
		bgentest.WriteIndex(t, bgiPath, bgenVariants(), offsets, sizes)

		dir := filepath.Join(t.TempDir(), "store")
		sum, err := FromBGEN(dir, BGENInput{Path: bgenPath, IndexPath: bgiPath}, bgenPanel(), Options{})
		require.NoError(t, err)
		assert.Equal(t, Summary{Chromosomes: 2, Variants: 3, Phased: 1}, *sum)
		checkBGENStore(t, dir)
	})
}

func TestFromBGENWithoutSampleIDs(t *testing.T) {
	tmp := t.TempDir()
	bgenPath := filepath.Join(tmp, "test.bgen")
	variants := bgenVariants()
	for i := range variants {
		variants[i].Calls = variants[i].Calls[:4]
	}
	bgentest.Write(t, bgenPath, bgentest.None, nil, variants)

	dir := filepath.Join(tmp, "store")
	_, err := FromBGEN(dir, BGENInput{Path: bgenPath}, bgenPanel(), Options{})
	require.NoError(t, err)

	_, err = FromBGEN(filepath.Join(tmp, "other"), BGENInput{Path: bgenPath}, bgenPanel()[:1], Options{})
	assert.Error(t, err)
}

func TestFromBGENPhasedFile(t *testing.T) {
	tmp := t.TempDir()
	mainPath := filepath.Join(tmp, "main.bgen")
	variants := bgenVariants()
	variants[1].Phased = false
	variants[1].Calls = []int8{0, 1, 1, 1, 0, 0}
	bgentest.Write(t, mainPath, bgentest.ZSTD, []string{"A1", "E1", "X"}, variants)

	phasedPath := filepath.Join(tmp, "phased.bgen")
	bgentest.Write(t, phasedPath, bgentest.None, []string{"E1", "A1"}, []bgentest.Variant{
		{ID: "p1", Chromosome: "01", Position: 10, Alleles: []string{"A", "G"}, Phased: true, Calls: []int8{1, 1, 0, 1}},
		{ID: "p2", Chromosome: "01", Position: 15, Alleles: []string{"A", "G"}, Phased: true, Calls: []int8{0, 0, 1, 0}},
		{ID: "p3", Chromosome: "02", Position: 5, Alleles: []string{"G", "A"}, Phased: true, Calls: []int8{1, 1, 0, 0}},
	})

	dir := filepath.Join(tmp, "store")
	sum, err := FromBGEN(dir, BGENInput{Path: mainPath, PhasedPath: phasedPath}, bgenPanel(), Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Chromosomes: 2, Variants: 3, Phased: 3}, *sum)

	st, err := store.Open(dir)
	require.NoError(t, err)
	defer st.Close()

	pos, err := st.Positions("1", store.Phased)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 15}, pos)
	assert.Equal(t, []int8{0, 1, 1, 1, 1, 0, 0, 0}, allCalls(t, st, "1", store.Phased))
	assert.Equal(t, []int8{0, 0, 1, 1}, allCalls(t, st, "2", store.Phased))
}
