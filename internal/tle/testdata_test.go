package tle

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058"

	geoLine1 = "1 41866U 16071A   25045.50000000 -.00000263  00000+0  00000+0 0  9990"
	geoLine2 = "2 41866   0.0510 265.3400 0000861 339.6800 112.1100  1.00271398 30542"
)
