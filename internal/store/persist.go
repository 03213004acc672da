package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// Index directory layout
const (
	EmbeddingsFile = "embeddings.bin"
	MetadataFile   = "metadata.json"
	PrevDir        = "prev"

	// FormatVersion is written to metadata.json; Load rejects other versions.
	FormatVersion = 2
)

// ErrNotFound is returned by Load when no index has been saved in dir.
var ErrNotFound = errors.New("index not found")

// metadataFile is the on-disk form of metadata.json: parallel arrays
// indexed by doc id plus the facts needed to validate embeddings.bin.
type metadataFile struct {
	Version          int    `json:"version"`
	Dim              int    `json:"dim"`
	DType            string `json:"dtype"`
	Count            int    `json:"count"`
	Model            string `json:"model"`
	EmbeddingsSize   int64  `json:"embeddings_size"`
	EmbeddingsSHA256 string `json:"embeddings_sha256"`

	Path      []string            `json:"path"`
	ChunkID   []int               `json:"chunk_id"`
	Ext       []string            `json:"ext"`
	Preview   []string            `json:"preview"`
	Text      []string            `json:"text"`
	Heading   []string            `json:"heading"`
	Tokens    [][]string          `json:"tokens"`
	Size      []int64             `json:"size"`
	Mtime     []float64           `json:"mtime"`
	Ctime     []float64           `json:"ctime"`
	Owner     []string            `json:"owner"`
	Drive     []string            `json:"drive"`
	ExtraMeta []map[string]string `json:"extra_meta"`
}

// Save writes the index pair into dir. The embedding file is replaced
// before the metadata file, and the previous valid pair is kept under
// prev/ first. A cross-process flock serialises writers.
func (idx *Index) Save(dir string) error {
	return idx.save(dir, nil)
}

// SaveIfChanged saves only when the index changed since the last
// load or save, or when dir holds no index yet.
func (idx *Index) SaveIfChanged(dir string) (bool, error) {
	if !idx.Dirty() && pairExists(dir) {
		return false, nil
	}
	if err := idx.save(dir, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (idx *Index) save(dir string, afterEmbeddings func() error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	lock := NewFileLock(dir)
	if err := lock.Lock(); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexLocked, "index directory is locked", err)
	}
	defer func() { _ = lock.Unlock() }()

	idx.mu.Lock()
	idx.settleGraph()
	version := idx.version
	emb := idx.encodeEmbeddings()
	meta := idx.encodeMetadata(emb)
	idx.mu.Unlock()

	metaBytes, err := json.MarshalIndent(meta, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal index metadata: %w", err)
	}

	if err := preservePrevious(dir); err != nil {
		return fmt.Errorf("failed to preserve previous index: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, EmbeddingsFile), emb, 0o644); err != nil {
		return fmt.Errorf("failed to write embeddings: %w", err)
	}
	if afterEmbeddings != nil {
		if err := afterEmbeddings(); err != nil {
			return err
		}
	}
	if err := renameio.WriteFile(filepath.Join(dir, MetadataFile), metaBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}

	idx.mu.Lock()
	if idx.savedVersion < version {
		idx.savedVersion = version
	}
	idx.mu.Unlock()

	slog.Debug("index_saved",
		slog.String("dir", dir),
		slog.Int("rows", meta.Count),
		slog.String("dtype", meta.DType))
	return nil
}

// encodeEmbeddings lays rows out row-major, little endian, in the index dtype.
func (idx *Index) encodeEmbeddings() []byte {
	width := idx.cfg.DType.ByteSize()
	buf := make([]byte, len(idx.vectors)*width)
	for i, v := range idx.vectors {
		if idx.cfg.DType == embed.FP16 {
			binary.LittleEndian.PutUint16(buf[i*2:], embed.EncodeFP16(v))
		} else {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
	}
	return buf
}

func (idx *Index) encodeMetadata(emb []byte) metadataFile {
	sum := sha256.Sum256(emb)
	n := len(idx.metas)
	mf := metadataFile{
		Version:          FormatVersion,
		Dim:              idx.cfg.Dim,
		DType:            string(idx.cfg.DType),
		Count:            n,
		Model:            idx.cfg.Model,
		EmbeddingsSize:   int64(len(emb)),
		EmbeddingsSHA256: hex.EncodeToString(sum[:]),
		Path:             make([]string, n),
		ChunkID:          make([]int, n),
		Ext:              make([]string, n),
		Preview:          make([]string, n),
		Text:             make([]string, n),
		Heading:          make([]string, n),
		Tokens:           make([][]string, n),
		Size:             make([]int64, n),
		Mtime:            make([]float64, n),
		Ctime:            make([]float64, n),
		Owner:            make([]string, n),
		Drive:            make([]string, n),
		ExtraMeta:        make([]map[string]string, n),
	}
	for i, m := range idx.metas {
		mf.Path[i] = m.Path
		mf.ChunkID[i] = m.ChunkID
		mf.Ext[i] = m.Ext
		mf.Preview[i] = m.Preview
		mf.Text[i] = m.Text
		mf.Heading[i] = m.Heading
		mf.Tokens[i] = m.Tokens
		if mf.Tokens[i] == nil {
			mf.Tokens[i] = []string{}
		}
		mf.Size[i] = m.Size
		mf.Mtime[i] = m.Mtime
		mf.Ctime[i] = m.Ctime
		mf.Owner[i] = m.Owner
		mf.Drive[i] = m.Drive
		mf.ExtraMeta[i] = m.ExtraMeta
		if mf.ExtraMeta[i] == nil {
			mf.ExtraMeta[i] = map[string]string{}
		}
	}
	return mf
}

// Load reads the index pair in dir. cfg supplies graph parameters; dim,
// dtype and model come from the metadata. An inconsistent primary pair
// falls back to prev/; when both fail the error is a CorruptIndexError
// and the caller rebuilds.
func Load(dir string, cfg Config) (*Index, error) {
	if !pairExists(dir) && !anyPairFile(dir) {
		return nil, ErrNotFound
	}

	lock := NewFileLock(dir)
	if err := lock.RLock(); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeIndexLocked, "index directory is locked", err)
	}
	defer func() { _ = lock.Unlock() }()

	idx, err := loadPair(dir, cfg)
	if err == nil {
		return idx, nil
	}

	de := docerrors.CorruptIndexError("index pair is inconsistent", err).WithDetail("dir", dir)
	slog.LogAttrs(context.Background(), slog.LevelWarn, "index_primary_invalid", docerrors.LogAttrs(de)...)

	prev, prevErr := loadPair(filepath.Join(dir, PrevDir), cfg)
	if prevErr != nil {
		return nil, de
	}
	slog.Warn("index_loaded_previous", slog.String("dir", dir), slog.Int("rows", prev.Len()))
	// The primary pair is still bad; make the next save rewrite it.
	prev.version++
	return prev, nil
}

func loadPair(dir string, cfg Config) (*Index, error) {
	mf, emb, err := readPair(dir)
	if err != nil {
		return nil, err
	}

	dtype, err := embed.ParseDType(mf.DType)
	if err != nil {
		return nil, err
	}
	cfg.Dim = mf.Dim
	cfg.DType = dtype
	cfg.Model = mf.Model

	idx := New(cfg)
	width := dtype.ByteSize()
	vec := make([]float32, mf.Dim)
	for i := 0; i < mf.Count; i++ {
		base := i * mf.Dim * width
		for j := range vec {
			off := base + j*width
			if dtype == embed.FP16 {
				vec[j] = embed.DecodeFP16(binary.LittleEndian.Uint16(emb[off:]))
			} else {
				vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(emb[off:]))
			}
		}
		meta := Meta{
			Path:      mf.Path[i],
			ChunkID:   mf.ChunkID[i],
			Ext:       mf.Ext[i],
			Preview:   mf.Preview[i],
			Text:      mf.Text[i],
			Heading:   mf.Heading[i],
			Tokens:    mf.Tokens[i],
			Size:      mf.Size[i],
			Mtime:     mf.Mtime[i],
			Ctime:     mf.Ctime[i],
			Owner:     mf.Owner[i],
			Drive:     mf.Drive[i],
			ExtraMeta: mf.ExtraMeta[i],
		}
		if len(meta.ExtraMeta) == 0 {
			meta.ExtraMeta = nil
		}
		if _, dup := idx.keys[rowKey{meta.Path, meta.ChunkID}]; dup {
			return nil, fmt.Errorf("duplicate row %s#%d", meta.Path, meta.ChunkID)
		}
		idx.appendRow(meta, vec)
	}
	return idx, nil
}

// readPair validates the pair in dir: metadata must not be older than
// embeddings, and the embedding file must match the recorded size and
// checksum.
func readPair(dir string) (metadataFile, []byte, error) {
	var mf metadataFile
	embPath := filepath.Join(dir, EmbeddingsFile)
	metaPath := filepath.Join(dir, MetadataFile)

	embInfo, err := os.Stat(embPath)
	if err != nil {
		return mf, nil, err
	}
	metaInfo, err := os.Stat(metaPath)
	if err != nil {
		return mf, nil, err
	}
	if metaInfo.ModTime().Before(embInfo.ModTime()) {
		return mf, nil, fmt.Errorf("metadata is older than embeddings")
	}

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return mf, nil, err
	}
	if err := json.Unmarshal(metaBytes, &mf); err != nil {
		return mf, nil, fmt.Errorf("decode metadata: %w", err)
	}
	if mf.Version != FormatVersion {
		return mf, nil, fmt.Errorf("unsupported metadata version %d", mf.Version)
	}
	dtype, err := embed.ParseDType(mf.DType)
	if err != nil {
		return mf, nil, err
	}
	if err := checkArrays(&mf); err != nil {
		return mf, nil, err
	}

	want := int64(mf.Count) * int64(mf.Dim) * int64(dtype.ByteSize())
	if embInfo.Size() != mf.EmbeddingsSize || embInfo.Size() != want {
		return mf, nil, fmt.Errorf("embeddings size %d, metadata records %d (expected %d)", embInfo.Size(), mf.EmbeddingsSize, want)
	}

	emb, err := os.ReadFile(embPath)
	if err != nil {
		return mf, nil, err
	}
	sum := sha256.Sum256(emb)
	if hex.EncodeToString(sum[:]) != mf.EmbeddingsSHA256 {
		return mf, nil, fmt.Errorf("embeddings checksum mismatch")
	}
	return mf, emb, nil
}

func checkArrays(mf *metadataFile) error {
	n := mf.Count
	if n < 0 || mf.Dim <= 0 && n > 0 {
		return fmt.Errorf("invalid shape count=%d dim=%d", n, mf.Dim)
	}
	lens := []int{
		len(mf.Path), len(mf.ChunkID), len(mf.Ext), len(mf.Preview), len(mf.Text), len(mf.Heading),
		len(mf.Tokens), len(mf.Size), len(mf.Mtime), len(mf.Ctime), len(mf.Owner),
		len(mf.Drive), len(mf.ExtraMeta),
	}
	for _, l := range lens {
		if l != n {
			return fmt.Errorf("metadata arrays disagree with count %d", n)
		}
	}
	return nil
}

// Exists reports whether dir holds a saved index pair.
func Exists(dir string) bool {
	return pairExists(dir)
}

func pairExists(dir string) bool {
	return fileExists(filepath.Join(dir, EmbeddingsFile)) && fileExists(filepath.Join(dir, MetadataFile))
}

func anyPairFile(dir string) bool {
	return fileExists(filepath.Join(dir, EmbeddingsFile)) || fileExists(filepath.Join(dir, MetadataFile)) ||
		pairExists(filepath.Join(dir, PrevDir))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// preservePrevious links the current pair into prev/ if it is valid.
// An invalid current pair leaves prev/ untouched.
func preservePrevious(dir string) error {
	if _, _, err := readPair(dir); err != nil {
		return nil
	}
	prev := filepath.Join(dir, PrevDir)
	if err := os.MkdirAll(prev, 0o755); err != nil {
		return err
	}
	for _, name := range []string{EmbeddingsFile, MetadataFile} {
		if err := linkOrCopy(filepath.Join(dir, name), filepath.Join(prev, name)); err != nil {
			return err
		}
	}
	return nil
}

// linkOrCopy places src at dst, hard-linking when the filesystem allows
// and copying with the original mtime otherwise.
func linkOrCopy(src, dst string) error {
	tmp := dst + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Link(src, tmp); err != nil {
		if err := copyFile(src, tmp); err != nil {
			_ = os.Remove(tmp)
			return err
		}
	}
	return os.Rename(tmp, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
