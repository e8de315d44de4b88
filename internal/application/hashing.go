package application

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"

	"github.com/bnema/pihole-sync/internal/domain"
	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"
)

// HashValue hashes the canonical JSON encoding of value. encoding/json writes map
// keys in sorted order, so equal documents hash equally.
func HashValue(value any) (uint64, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return 0, &domain.SerializationError{Op: "hash value", Err: err}
	}
	return hashBytes(encoded), nil
}

// SnapshotDigest hashes the entry names and uncompressed contents of a teleporter
// archive so that re-zipping the same data yields the same digest. It also returns
// the number of entries. Bytes that are not a readable zip are hashed as-is and
// report zero entries.
func SnapshotDigest(archive []byte) (uint64, int) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return hashBytes(archive), 0
	}

	files := append([]*zip.File(nil), reader.File...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	hasher := blake3.New()
	for _, file := range files {
		if err := hashEntry(hasher, file); err != nil {
			return hashBytes(archive), 0
		}
	}

	sum := hasher.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]), len(files)
}

func hashEntry(hasher *blake3.Hasher, file *zip.File) error {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(file.Name)))
	_, _ = hasher.Write(size[:])
	_, _ = hasher.Write([]byte(file.Name))
	binary.BigEndian.PutUint64(size[:], file.UncompressedSize64)
	_, _ = hasher.Write(size[:])

	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(hasher, rc)
	return err
}

func hashBytes(data []byte) uint64 {
	sum := blake3.Sum256(data)
	return binary.BigEndian.Uint64(sum[:8])
}
