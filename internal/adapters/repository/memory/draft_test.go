package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/flowgraph/blockgraph/internal/adapters/repository/storetest"
	"github.com/flowgraph/blockgraph/internal/core/draft"
	"github.com/flowgraph/blockgraph/pkg/serialization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) draft.Store { return NewStore(nil) })
}

func TestStore_JSONSerializer(t *testing.T) {
	s, err := serialization.NewSerializer(serialization.SerializationConfig{
		Codec:       serialization.NewJSONCodec(),
		Compression: serialization.CompressionGzip,
	})
	require.NoError(t, err)
	storetest.Run(t, func(t *testing.T) draft.Store { return NewStore(s) })
}

func TestStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(ctx, storetest.NewDraft(t, "app", "v"), ""))
			_, err := s.Load(ctx, "app")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, s.Len())
}
