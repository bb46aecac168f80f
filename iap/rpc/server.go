package rpc

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lancao008/google-pay/iap"
)

const serviceName = "iap.v3.InAppBillingService"

// Approver completes buy intents on behalf of the store's approval screen.
type Approver interface {
	Approve(handle string) (*iap.PurchaseResult, error)
	Decline(handle string, response iap.ResponseCode) (*iap.PurchaseResult, error)
}

// BillingServer is the server side of the billing service.
type BillingServer interface {
	IsBillingSupported(context.Context, *IsBillingSupportedRequest) (*ResponseCodeResponse, error)
	GetBuyIntent(context.Context, *GetBuyIntentRequest) (*iap.BuyIntentResponse, error)
	GetPurchases(context.Context, *GetPurchasesRequest) (*iap.PurchasesResponse, error)
	GetSkuDetails(context.Context, *GetSkuDetailsRequest) (*iap.SkuDetailsResponse, error)
	ConsumePurchase(context.Context, *ConsumePurchaseRequest) (*ResponseCodeResponse, error)
	Approve(context.Context, *ApproveRequest) (*iap.PurchaseResult, error)
}

// Server exposes an iap.Service over gRPC.
type Server struct {
	log *zap.Logger
	svc iap.Service
}

func NewServer(log *zap.Logger, svc iap.Service) *Server {
	return &Server{
		log: log,
		svc: svc,
	}
}

// Register binds the server to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

func (s *Server) IsBillingSupported(ctx context.Context, req *IsBillingSupportedRequest) (*ResponseCodeResponse, error) {
	code, err := s.svc.IsBillingSupported(ctx, req.APIVersion, req.PackageName, req.ItemType)
	if err != nil {
		return nil, s.unavailable("isBillingSupported", err)
	}
	return &ResponseCodeResponse{ResponseCode: code}, nil
}

func (s *Server) GetBuyIntent(ctx context.Context, req *GetBuyIntentRequest) (*iap.BuyIntentResponse, error) {
	resp, err := s.svc.GetBuyIntent(ctx, req.APIVersion, req.PackageName, req.SKU, req.ItemType, req.DeveloperPayload)
	if err != nil {
		return nil, s.unavailable("getBuyIntent", err)
	}
	return resp, nil
}

func (s *Server) GetPurchases(ctx context.Context, req *GetPurchasesRequest) (*iap.PurchasesResponse, error) {
	resp, err := s.svc.GetPurchases(ctx, req.APIVersion, req.PackageName, req.ItemType, req.ContinuationToken)
	if err != nil {
		return nil, s.unavailable("getPurchases", err)
	}
	return resp, nil
}

func (s *Server) GetSkuDetails(ctx context.Context, req *GetSkuDetailsRequest) (*iap.SkuDetailsResponse, error) {
	resp, err := s.svc.GetSkuDetails(ctx, req.APIVersion, req.PackageName, req.ItemType, req.SKUs)
	if err != nil {
		return nil, s.unavailable("getSkuDetails", err)
	}
	return resp, nil
}

func (s *Server) ConsumePurchase(ctx context.Context, req *ConsumePurchaseRequest) (*ResponseCodeResponse, error) {
	code, err := s.svc.ConsumePurchase(ctx, req.APIVersion, req.PackageName, req.Token)
	if err != nil {
		return nil, s.unavailable("consumePurchase", err)
	}
	return &ResponseCodeResponse{ResponseCode: code}, nil
}

func (s *Server) Approve(_ context.Context, req *ApproveRequest) (*iap.PurchaseResult, error) {
	approver, ok := s.svc.(Approver)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "service does not approve purchases")
	}

	log := s.log.With(zap.String("handle", req.Handle), zap.Bool("decline", req.Decline))

	var (
		result *iap.PurchaseResult
		err    error
	)
	if req.Decline {
		result, err = approver.Decline(req.Handle, req.ResponseCode)
	} else {
		result, err = approver.Approve(req.Handle)
	}

	if errors.Is(err, iap.ErrUnknownIntent) {
		return nil, status.Error(codes.NotFound, "buy intent not found")
	} else if err != nil {
		log.Warn("Failed to complete buy intent", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to complete buy intent")
	}

	log.Debug("Completed buy intent", zap.Stringer("response", result.ResponseCode))
	return result, nil
}

func (s *Server) unavailable(method string, err error) error {
	s.log.Warn("Billing service call failed", zap.String("method", method), zap.Error(err))
	return status.Error(codes.Unavailable, err.Error())
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BillingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IsBillingSupported", Handler: unaryHandler("IsBillingSupported", BillingServer.IsBillingSupported)},
		{MethodName: "GetBuyIntent", Handler: unaryHandler("GetBuyIntent", BillingServer.GetBuyIntent)},
		{MethodName: "GetPurchases", Handler: unaryHandler("GetPurchases", BillingServer.GetPurchases)},
		{MethodName: "GetSkuDetails", Handler: unaryHandler("GetSkuDetails", BillingServer.GetSkuDetails)},
		{MethodName: "ConsumePurchase", Handler: unaryHandler("ConsumePurchase", BillingServer.ConsumePurchase)},
		{MethodName: "Approve", Handler: unaryHandler("Approve", BillingServer.Approve)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "iap/v3/billing.proto",
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler[Req, Resp any](method string, call func(BillingServer, context.Context, *Req) (*Resp, error)) methodHandler {
	fullMethod := "/" + serviceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}

		req := new(Req)
		if err := fromStruct(in, req); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		handler := func(ctx context.Context, req any) (any, error) {
			resp, err := call(srv.(BillingServer), ctx, req.(*Req))
			if err != nil {
				return nil, err
			}

			out, err := toStruct(resp)
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, req)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, req, info, handler)
	}
}
