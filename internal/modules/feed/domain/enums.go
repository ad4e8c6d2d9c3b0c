//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package domain

// Format selects the serialized feed dialect
// ENUM(rss,atom,json)
type Format string

// PublishMode decides what triggers a re-publish
// ENUM(request,scheduled)
type PublishMode string

// StorageBackend selects where the cache artifact lives
// ENUM(file,memory,sqlite,postgres)
type StorageBackend string

// AppEnv represents the application environment
// ENUM(local,production,development,testing)
type AppEnv string
