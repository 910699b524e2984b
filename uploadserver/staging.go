package uploadserver

import "sync"

// chunkStaging tracks the on-disk staging paths of received chunks, keyed by
// the original file name. Safe for concurrent handlers.
type chunkStaging struct {
	chunks map[string][]string
	mutex  sync.RWMutex
}

func newChunkStaging() *chunkStaging {
	return &chunkStaging{
		chunks: make(map[string][]string),
	}
}

// addChunk records the staging path of one received chunk, initializing the
// slot list for the file on first contact.
func (s *chunkStaging) addChunk(fileName, chunkPath string, chunkIndex, totalChunks int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.chunks[fileName]; !exists {
		s.chunks[fileName] = make([]string, totalChunks)
	}
	if chunkIndex >= 0 && chunkIndex < len(s.chunks[fileName]) {
		s.chunks[fileName][chunkIndex] = chunkPath
	}
}

// isComplete reports whether every chunk of the file has been received.
func (s *chunkStaging) isComplete(fileName string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	chunks, exists := s.chunks[fileName]
	if !exists {
		return false
	}
	for _, chunk := range chunks {
		if chunk == "" {
			return false
		}
	}
	return true
}

// chunkPaths returns the staged chunk paths of the file in index order.
func (s *chunkStaging) chunkPaths(fileName string) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]string{}, s.chunks[fileName]...)
}

// remove forgets the file's staged chunks.
func (s *chunkStaging) remove(fileName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.chunks, fileName)
}
