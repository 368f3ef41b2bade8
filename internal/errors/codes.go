package errors

// Kind classifies an Error by the component boundary at which it occurred.
type Kind string

const (
	KindFetch     Kind = "fetch"
	KindEmbed     Kind = "embed"
	KindUpsert    Kind = "upsert"
	KindIndex     Kind = "index"
	KindFilter    Kind = "filter"
	KindAnswer    Kind = "answer"
	KindConflict  Kind = "conflict"
	KindCancelled Kind = "cancelled"
	KindChunk     Kind = "chunk"
	KindConfig    Kind = "config"
	KindInternal  Kind = "internal"
	KindMemory    Kind = "memory"
)

// retryableKinds lists the kinds that are retryable by default when
// constructed via New. Transient and Permanent override this explicitly.
var retryableKinds = map[Kind]bool{
	KindEmbed:  true,
	KindUpsert: true,
}
