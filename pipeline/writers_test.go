package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/google/go-cmp/cmp"
)

func sampleProducts() []models.Product {
	return []models.Product{
		{Title: "Asus VivoBook X441NA-GA190", Description: "Asus VivoBook, 14\", Celeron N3450", Price: 1300, Rating: 3, NumOfReviews: 9},
		{Title: "Packard 255 G2", Description: "15.6\", AMD E2-3800 1.3GHz,\n4GB, 500GB", Price: 416.99, Rating: 2, NumOfReviews: 2},
		{Title: "Nokia 123", Description: "", Price: 24.99, Rating: 1, NumOfReviews: 11},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "laptops.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write(sampleProducts()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records=%d, want 4", len(records))
	}
	if strings.Join(records[0], ",") != "title,description,price,rating,num_of_reviews" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][2] != "1300" {
		t.Fatalf("price column = %q, want plain decimal 1300", records[1][2])
	}
}

func TestCSVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	want := sampleProducts()
	if err := writer.Write(want[:1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Write(want[1:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := ReadCSV(f)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVWriterHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "empty.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("header-only file should validate: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "title,description,price,rating,num_of_reviews\n" {
		t.Fatalf("content = %q, want header only", data)
	}
}

func TestCSVWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home.csv")
	if err := os.WriteFile(path, []byte("stale,data\nfrom,before\nand,more\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "stale") {
		t.Fatalf("existing content was not truncated: %q", data)
	}
}

func TestCSVWriterWriteAfterClose(t *testing.T) {
	writer, err := NewCSVWriter(filepath.Join(t.TempDir(), "closed.csv"))
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	writer.Close()
	if err := writer.Write(sampleProducts()); err == nil {
		t.Fatalf("expected error writing to closed writer")
	}
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "wrong header", input: "title,price\nx,1\n"},
		{name: "bad price", input: "title,description,price,rating,num_of_reviews\nx,y,$1,2,3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.input)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write(sampleProducts()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.Product
	for scanner.Scan() {
		var p models.Product
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, p)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if diff := cmp.Diff(sampleProducts(), decoded); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "touch.csv")

	writer, err := NewWriter("dual", csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write(sampleProducts()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(filepath.Join(dir, "touch.jsonl")); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewWriterFormats(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter("json", filepath.Join(dir, "tablets.csv"))
	if err != nil {
		t.Fatalf("json writer: %v", err)
	}
	w.Close()
	if _, err := os.Stat(filepath.Join(dir, "tablets.jsonl")); err != nil {
		t.Fatalf("json format should write tablets.jsonl: %v", err)
	}

	if _, err := NewWriter("xml", filepath.Join(dir, "x.csv")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
