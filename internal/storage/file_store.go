package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression определяет сжатие файлов сохранений
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

const saveFileExt = ".save"

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ParseCompression разбирает название сжатия из конфигурации
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(s)) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip:
		return CompressionGzip, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("неизвестный тип сжатия: %s", s)
	}
}

// FileStore хранит каждый слот в отдельном файле <slot>.save.
// Запись атомарна: данные пишутся во временный файл и переименовываются.
// Сжатие при чтении определяется по сигнатуре, поэтому смена настройки не ломает старые файлы.
type FileStore struct {
	basePath    string
	compression Compression
	mu          sync.Mutex
}

// NewFileStore создаёт файловое хранилище в каталоге basePath
func NewFileStore(basePath string, compression Compression) (*FileStore, error) {
	// Создаём директорию если её нет
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", basePath, err)
	}
	if compression == "" {
		compression = CompressionNone
	}

	return &FileStore{basePath: basePath, compression: compression}, nil
}

func (s *FileStore) path(slot string) string {
	return filepath.Join(s.basePath, slot+saveFileExt)
}

// Save записывает слот
func (s *FileStore) Save(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := compress(s.compression, data)
	if err != nil {
		return fmt.Errorf("ошибка сжатия слота %s: %w", slot, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.basePath, slot+".*.tmp")
	if err != nil {
		return fmt.Errorf("не удалось создать временный файл: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ошибка записи слота %s: %w", slot, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ошибка закрытия файла слота %s: %w", slot, err)
	}
	if err := os.Rename(tmpName, s.path(slot)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ошибка переименования файла слота %s: %w", slot, err)
	}

	return nil
}

// Load читает слот
func (s *FileStore) Load(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	raw, err := os.ReadFile(s.path(slot))
	s.mu.Unlock()

	if os.IsNotExist(err) {
		return nil, ErrSaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения слота %s: %w", slot, err)
	}

	data, err := decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки слота %s: %w", slot, err)
	}
	return data, nil
}

// Delete удаляет файл слота
func (s *FileStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(slot))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления слота %s: %w", slot, err)
	}
	return nil
}

// List возвращает имена слотов в каталоге
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога %s: %w", s.basePath, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), saveFileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), saveFileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Close ничего не делает
func (s *FileStore) Close() error {
	return nil
}

func compress(c Compression, data []byte) ([]byte, error) {
	var buf bytes.Buffer

	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionZstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("неизвестный тип сжатия: %s", c)
	}

	return buf.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, gzipMagic):
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case bytes.HasPrefix(raw, zstdMagic):
		r, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return raw, nil
	}
}
