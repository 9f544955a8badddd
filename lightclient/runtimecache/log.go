package runtimecache

import "github.com/sirupsen/logrus"

var log = logrus.WithField("prefix", "runtimecache")
