package persistence

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://annel0.github.io/voxel-sandbox/save.schema.json"

//go:embed save.schema.json
var saveSchemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// saveSchema компилирует встроенную схему один раз
func saveSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(saveSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("ошибка загрузки схемы сохранения: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// SchemaJSON возвращает JSON-схему записи сохранения
func SchemaJSON() []byte {
	out := make([]byte, len(saveSchemaJSON))
	copy(out, saveSchemaJSON)
	return out
}
