package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/lendlib/membership/internal/app/api/server"
	"github.com/lendlib/membership/internal/app/service/catalog"
	"github.com/lendlib/membership/internal/app/service/enrolment"
	membershipsvc "github.com/lendlib/membership/internal/app/service/membership"
	"github.com/lendlib/membership/internal/app/service/notification"
	paymentsvc "github.com/lendlib/membership/internal/app/service/payment"
	"github.com/lendlib/membership/internal/platform/db"
	"github.com/lendlib/membership/internal/platform/gateway"
	"github.com/lendlib/membership/internal/platform/usermgr"
	"github.com/lendlib/membership/pkg/config"
	"github.com/lendlib/membership/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	catalog.Module,
	membershipsvc.Module,
	paymentsvc.Module,
	notification.Module,
	gateway.Module,
	usermgr.Module,
	enrolment.Module,
)
