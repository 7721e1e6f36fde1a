package main

import (
	"time"

	"github.com/antinvestor/mpesa-api/config"
	"github.com/antinvestor/mpesa-api/service/business"
	"github.com/antinvestor/mpesa-api/service/coreapi"
	"github.com/antinvestor/mpesa-api/service/events/events_stk"
	handlers "github.com/antinvestor/mpesa-api/service/handler"
	"github.com/antinvestor/mpesa-api/service/models"
	"github.com/antinvestor/mpesa-api/service/repository"
	"github.com/antinvestor/mpesa-api/service/router"
	"github.com/nats-io/nats.go"
	"github.com/pitabwire/frame"
	"github.com/sirupsen/logrus"
)

func main() {
	serviceName := "service_mpesa_api"
	mpesaConfig, err := frame.ConfigFromEnv[config.MpesaConfig]()
	if err != nil {
		panic(err)
	}

	clientAPI, err := coreapi.New(mpesaConfig.ConsumerKey, mpesaConfig.ConsumerSecret, mpesaConfig.BaseURL)
	if err != nil {
		panic(err)
	}
	clientAPI.TokenTimeout = time.Duration(mpesaConfig.TokenTimeoutSeconds) * time.Second
	clientAPI.PushTimeout = time.Duration(mpesaConfig.PushTimeoutSeconds) * time.Second

	builder, err := coreapi.NewPayloadBuilder(mpesaConfig.ShortCode, mpesaConfig.Passkey,
		mpesaConfig.CallbackURL, mpesaConfig.TransactionType)
	if err != nil {
		panic(err)
	}

	ctx, service := frame.NewService(serviceName, frame.WithConfig(&mpesaConfig))
	defer service.Stop(ctx)
	logger := service.Log(ctx).WithField("type", "main")

	serviceOptions := []frame.Option{frame.WithDatastore()}
	service.Init(ctx, serviceOptions...)

	db := service.DB(ctx, false)
	if db == nil {
		logger.Fatal("database connection is nil - check DATABASE_URL and database availability")
		return
	}
	if err = db.AutoMigrate(&models.PaymentIntent{}); err != nil {
		logger.WithError(err).Fatal("failed to auto-migrate database tables")
		return
	}

	tokens := coreapi.NewTokenSource(clientAPI, mpesaConfig.TokenMaxRetries, logrus.StandardLogger())

	intentRepo := repository.NewPaymentIntentRepository(ctx, service)
	paymentBusiness, err := business.NewPaymentBusiness(ctx, clientAPI, tokens, builder,
		intentRepo, logrus.StandardLogger())
	if err != nil {
		logger.WithError(err).Fatal("could not set up payment business")
		return
	}

	js := handlers.NewJobServer(paymentBusiness, logrus.StandardLogger())
	httpRouter := router.NewRouter(js)

	initiatePush := events_stk.NewInitiatePush(paymentBusiness, logrus.StandardLogger())
	stkCallback := events_stk.NewStkCallback(paymentBusiness, logrus.StandardLogger())

	eventHandlers := []frame.EventI{initiatePush, stkCallback}

	pushTopic := initiatePush.Name()
	callbackTopic := stkCallback.Name()

	natsURL := mpesaConfig.NATS_URL
	if !natsProbe(logrus.StandardLogger(), natsURL) {
		// Without a broker the service still serves HTTP; queued prompts
		// fall back to in-process delivery.
		logger.Warn("could not reach NATS, falling back to in-memory pub/sub")
		natsURL = "mem://"
	}

	serviceOptions = []frame.Option{
		frame.WithHTTPHandler(httpRouter),
		frame.WithRegisterEvents(eventHandlers...),
		frame.WithRegisterPublisher(pushTopic, natsURL+pushTopic),
		frame.WithRegisterPublisher(callbackTopic, natsURL+callbackTopic),
		frame.WithRegisterSubscriber(pushTopic, natsURL+pushTopic, initiatePush),
		frame.WithRegisterSubscriber(callbackTopic, natsURL+callbackTopic, stkCallback),
	}

	service.Init(ctx, serviceOptions...)

	logger.Info("mpesa API service starting on port 8080")
	if runErr := service.Run(ctx, ":8080"); runErr != nil {
		logger.WithError(runErr).Fatal("failed to run mpesa API service")
	}
}

// natsProbe tests broker connectivity with a few bounded attempts so a slow
// broker start does not take the whole service down with it.
func natsProbe(logger logrus.FieldLogger, natsURL string) bool {
	const maxRetries = 5
	for i := range maxRetries {
		nc, err := nats.Connect(natsURL)
		if err != nil {
			logger.WithError(err).WithField("attempt", i+1).Warn("failed to connect to NATS, retrying after delay")
			time.Sleep(2 * time.Second)
			continue
		}
		nc.Close()
		return true
	}
	return false
}
