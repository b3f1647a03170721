package wire

import (
	"citychat/domain"
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	ServiceName       = "citychat.v1.ChatHub"
	ConnectMethodName = "/citychat.v1.ChatHub/Connect"

	// UserIDHeader carries the installation identifier of the client.
	UserIDHeader = "x-user-id"
)

// ChatHubServer is implemented by the server adapter.
type ChatHubServer interface {
	Connect(stream ConnectServerStream) error
}

type ConnectServerStream interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type connectServerStream struct {
	grpc.ServerStream
}

func (s *connectServerStream) Send(f *Frame) error {
	return s.ServerStream.SendMsg(f)
}

func (s *connectServerStream) Recv() (*Frame, error) {
	f := new(Frame)
	if err := s.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func connectHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ChatHubServer).Connect(&connectServerStream{stream})
}

// ServiceDesc registers the hub without generated protobuf code.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatHubServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       connectHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "citychat/v1/chat_hub",
}

func RegisterChatHubServer(s grpc.ServiceRegistrar, srv ChatHubServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type ChatHubClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (ConnectClientStream, error)
}

type ConnectClientStream interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ClientStream
}

type chatHubClient struct {
	cc grpc.ClientConnInterface
}

func NewChatHubClient(cc grpc.ClientConnInterface) ChatHubClient {
	return &chatHubClient{cc: cc}
}

// Connect opens the stream with the CBOR codec.
func (c *chatHubClient) Connect(ctx context.Context, opts ...grpc.CallOption) (ConnectClientStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ConnectMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &connectClientStream{stream}, nil
}

type connectClientStream struct {
	grpc.ClientStream
}

func (s *connectClientStream) Send(f *Frame) error {
	return s.ClientStream.SendMsg(f)
}

func (s *connectClientStream) Recv() (*Frame, error) {
	f := new(Frame)
	if err := s.ClientStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

// WithUserID announces the user of a stream about to be opened.
func WithUserID(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, UserIDHeader, userID)
}

// UserIDFromContext reads the announced user, or domain.UnknownUserID.
func UserIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.UnknownUserID
	}
	values := md.Get(UserIDHeader)
	if len(values) == 0 || values[0] == "" {
		return domain.UnknownUserID
	}
	return values[0]
}
