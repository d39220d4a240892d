package protocol

//go:generate protoc --go_out=pb --go_opt=paths=source_relative --proto_path=../../proto ../../proto/chunk.proto

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/omochice/relay-chat/pkg/protocol/pb"
)

// marshalChunk encodes the chunk as a pb.Chunk message.
func marshalChunk(c *FileChunk) ([]byte, error) {
	data, err := proto.Marshal(c.toProto())
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk: %w", err)
	}
	return data, nil
}

// unmarshalChunk parses a pb.Chunk message. Unknown fields are skipped.
func unmarshalChunk(b []byte) (*FileChunk, error) {
	pbChunk := &pb.Chunk{}
	if err := proto.Unmarshal(b, pbChunk); err != nil {
		return nil, fmt.Errorf("failed to decode chunk: %w", err)
	}
	c := &FileChunk{}
	c.fromProto(pbChunk)
	return c, nil
}

// toProto converts the chunk to its protobuf message.
func (c *FileChunk) toProto() *pb.Chunk {
	return &pb.Chunk{
		FileId:      c.FileID,
		ChunkIndex:  c.Index,
		TotalChunks: c.Total,
		Data:        c.Data,
	}
}

// fromProto populates the chunk from its protobuf message.
func (c *FileChunk) fromProto(pbChunk *pb.Chunk) {
	c.FileID = pbChunk.GetFileId()
	c.Index = pbChunk.GetChunkIndex()
	c.Total = pbChunk.GetTotalChunks()
	if len(pbChunk.GetData()) > 0 {
		c.Data = pbChunk.GetData()
	}
}
